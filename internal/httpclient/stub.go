package httpclient

import (
	"context"
	"fmt"
	"regexp"
)

// Matcher decides whether a stubbed response applies to a given Request.
type Matcher func(req Request) bool

// ExactURL matches requests whose method and URL are both exactly equal.
func ExactURL(method, url string) Matcher {
	return func(req Request) bool {
		return req.Method == method && req.URL == url
	}
}

// URLPattern matches requests whose URL matches the given regexp,
// optionally restricted to one method ("" matches any method).
func URLPattern(method, pattern string) Matcher {
	re := regexp.MustCompile(pattern)
	return func(req Request) bool {
		if method != "" && req.Method != method {
			return false
		}
		return re.MatchString(req.URL)
	}
}

// stubEntry pairs a matcher with either a canned response or an error to
// return.
type stubEntry struct {
	match Matcher
	resp  *Response
	err   error
}

// StubClient is the Client test double: register responses with On/OnError,
// then exercise it exactly like the real HTTPClient. Unmatched requests
// return an error, mirroring the "missing stub" scenario from the test
// suite.
type StubClient struct {
	entries []stubEntry
	calls   []Request
}

// NewStub returns an empty StubClient.
func NewStub() *StubClient {
	return &StubClient{}
}

// On registers a canned response for requests matching m.
func (s *StubClient) On(m Matcher, resp Response) *StubClient {
	s.entries = append(s.entries, stubEntry{match: m, resp: &resp})
	return s
}

// OnError registers a transport error for requests matching m.
func (s *StubClient) OnError(m Matcher, err error) *StubClient {
	s.entries = append(s.entries, stubEntry{match: m, err: err})
	return s
}

// Calls returns every request Do() has seen so far, in order.
func (s *StubClient) Calls() []Request {
	return s.calls
}

// Do implements Client by returning the first registered match, or an
// error if nothing matches.
func (s *StubClient) Do(_ context.Context, req Request) (*Response, error) {
	s.calls = append(s.calls, req)

	for _, e := range s.entries {
		if e.match(req) {
			if e.err != nil {
				return nil, e.err
			}
			respCopy := *e.resp
			return &respCopy, nil
		}
	}

	return nil, fmt.Errorf("httpclient: no stub registered for %s %s", req.Method, req.URL)
}
