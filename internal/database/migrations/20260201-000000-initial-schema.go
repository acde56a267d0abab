package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260201-000000",
		Description: "initial schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS plans (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				project TEXT NOT NULL,
				environment TEXT NOT NULL,
				version TEXT NOT NULL,
				frequency_every INTEGER,
				frequency_unit TEXT,
				locations JSONB,
				definition JSONB NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_plans_project ON plans(project)`,
			`CREATE INDEX IF NOT EXISTS idx_plans_project_name ON plans(project, name)`,

			`CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				plan_id TEXT NOT NULL REFERENCES plans(id),
				execution_group_id TEXT NOT NULL,
				location TEXT NOT NULL,
				environment TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'PENDING',
				triggered_by TEXT NOT NULL,
				started_at TIMESTAMPTZ NOT NULL,
				completed_at TIMESTAMPTZ,
				duration_ms BIGINT,
				success BOOLEAN,
				errors JSONB
			)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_plan_id ON runs(plan_id)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_execution_group_id ON runs(execution_group_id)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,

			`CREATE TABLE IF NOT EXISTS jobs (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				data JSONB NOT NULL,
				status TEXT NOT NULL DEFAULT 'PENDING',
				attempts INTEGER NOT NULL DEFAULT 0,
				max_attempts INTEGER NOT NULL DEFAULT 5,
				available_at TIMESTAMPTZ NOT NULL,
				location TEXT NOT NULL,
				locked_by TEXT,
				locked_until TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			// Backs Claim's "next claimable job for location" query.
			`CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(location, status, available_at)`,
		},
	})
}
