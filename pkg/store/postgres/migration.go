package postgres

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE machines (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				mode VARCHAR(10) NOT NULL CHECK (mode IN ('sync', 'async')),
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_machines_name ON machines(name);
			CREATE INDEX idx_machines_created_at ON machines(created_at);

			CREATE TABLE executions (
				id UUID PRIMARY KEY,
				machine_id UUID NOT NULL REFERENCES machines(id) ON DELETE CASCADE,
				status VARCHAR(20) NOT NULL,
				input JSONB,
				output JSONB,
				error VARCHAR(255),
				cause TEXT,
				history JSONB NOT NULL DEFAULT '[]',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				stopped_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_machine_id ON executions(machine_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_started_at ON executions(started_at);
		`,
	}
}
