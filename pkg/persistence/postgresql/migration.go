package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE sequences (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT false,
				last_run_at TIMESTAMP WITH TIME ZONE,
				run_count BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_sequences_organization_id ON sequences(organization_id);

			CREATE TABLE actions (
				id TEXT PRIMARY KEY,
				sequence_id TEXT NOT NULL REFERENCES sequences(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL DEFAULT '',
				type VARCHAR(50) NOT NULL,
				integration_id TEXT NOT NULL DEFAULT '',
				app VARCHAR(255) NOT NULL,
				action_key VARCHAR(255) NOT NULL,
				configuration JSONB,
				sort_order INT NOT NULL DEFAULT 0,
				metadata JSONB,
				timeout_seconds INT NOT NULL DEFAULT 0,
				max_retries INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_actions_sequence_order ON actions(sequence_id, sort_order, created_at);

			CREATE TABLE triggers (
				id TEXT PRIMARY KEY,
				sequence_id TEXT NOT NULL REFERENCES sequences(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL DEFAULT '',
				kind VARCHAR(50) NOT NULL CHECK (kind IN ('integration', 'webhook')),
				integration_id TEXT NOT NULL DEFAULT '',
				trigger_key VARCHAR(255) NOT NULL DEFAULT '',
				webhook_token TEXT UNIQUE,
				webhook_secret TEXT NOT NULL DEFAULT '',
				auth_config JSONB,
				conditions JSONB,
				json_schema JSONB,
				active BOOLEAN NOT NULL DEFAULT false,
				last_triggered_at TIMESTAMP WITH TIME ZONE,
				trigger_count BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_triggers_integration ON triggers(integration_id, trigger_key) WHERE kind = 'integration';

			-- Events outlive their trigger for audit, so trigger_id is not a foreign key.
			CREATE TABLE trigger_events (
				id TEXT PRIMARY KEY,
				trigger_id TEXT NOT NULL,
				event_source VARCHAR(50) NOT NULL CHECK (event_source IN ('webhook', 'integration')),
				event_data JSONB,
				metadata JSONB,
				status VARCHAR(50) NOT NULL CHECK (status IN ('received', 'processed', 'ignored', 'failed')),
				error_message TEXT NOT NULL DEFAULT '',
				run_id TEXT NOT NULL DEFAULT '',
				processed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_trigger_events_trigger ON trigger_events(trigger_id, created_at DESC);

			CREATE TABLE workflow_runs (
				id TEXT PRIMARY KEY,
				sequence_id TEXT NOT NULL,
				trigger_id TEXT NOT NULL,
				trigger_event_id TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('queued', 'running', 'succeeded', 'failed')),
				input JSONB,
				output JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_runs_pending ON workflow_runs(updated_at) WHERE status IN ('queued', 'running');

			CREATE TABLE workflow_steps (
				id TEXT PRIMARY KEY,
				run_id TEXT NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
				action_id TEXT NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				position INT NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'succeeded', 'failed')),
				input_data JSONB,
				output_data JSONB,
				processed_output JSONB,
				retry_count INT NOT NULL DEFAULT 0,
				max_retries INT NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				error_code VARCHAR(100) NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				version BIGINT NOT NULL DEFAULT 0,
				UNIQUE (run_id, position)
			);
		`,
	}
}
