package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create pipelines table
			CREATE TABLE pipelines (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT,
				steps JSONB NOT NULL,
				triggers JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_pipelines_created_at ON pipelines(created_at);

			-- Create runs table
			CREATE TABLE runs (
				id VARCHAR(255) PRIMARY KEY,
				pipeline_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'succeeded', 'failed', 'cancelled')),
				trigger_event JSONB NOT NULL,
				steps JSONB,
				failed_step INT NOT NULL DEFAULT 0,
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_runs_pipeline_id ON runs(pipeline_id);
			CREATE INDEX idx_runs_status ON runs(status);
			CREATE INDEX idx_runs_created_at ON runs(created_at);
		`,
	}
}
