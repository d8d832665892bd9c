package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE sequence_runs (
				id BIGSERIAL PRIMARY KEY,
				run_id VARCHAR(255) NOT NULL,
				instrument_run_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				date_modified TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(255) NOT NULL,
				gds_folder_path TEXT NOT NULL DEFAULT '',
				gds_volume_name TEXT NOT NULL DEFAULT '',
				reagent_barcode VARCHAR(255) NOT NULL DEFAULT '',
				flowcell_barcode VARCHAR(255) NOT NULL DEFAULT '',
				sample_sheet_name VARCHAR(255) NOT NULL DEFAULT '',
				api_url TEXT NOT NULL DEFAULT '',
				acl TEXT NOT NULL DEFAULT '[]',
				msg_attr_action VARCHAR(255) NOT NULL DEFAULT '',
				msg_attr_action_type VARCHAR(255) NOT NULL DEFAULT '',
				msg_attr_action_date VARCHAR(255) NOT NULL DEFAULT '',
				msg_attr_produced_by VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				CONSTRAINT uq_sequence_runs_observation UNIQUE (run_id, date_modified, status)
			);

			CREATE INDEX idx_sequence_runs_name ON sequence_runs(name);

			CREATE TABLE batches (
				id BIGSERIAL PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				created_by VARCHAR(255) NOT NULL,
				context_data TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				CONSTRAINT uq_batches_name_created_by UNIQUE (name, created_by)
			);

			CREATE TABLE batch_runs (
				id BIGSERIAL PRIMARY KEY,
				batch_id BIGINT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
				step VARCHAR(255) NOT NULL,
				running BOOLEAN NOT NULL DEFAULT false,
				notified BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			-- at most one running attempt per (batch, step)
			CREATE UNIQUE INDEX uq_batch_runs_running ON batch_runs(batch_id, step) WHERE running;
			CREATE INDEX idx_batch_runs_batch_id ON batch_runs(batch_id);

			CREATE TABLE workflows (
				id BIGSERIAL PRIMARY KEY,
				wfl_id VARCHAR(255) NOT NULL,
				wfr_id VARCHAR(255) NOT NULL,
				wfv_id VARCHAR(255) NOT NULL,
				wfr_name TEXT NOT NULL DEFAULT '',
				type_name VARCHAR(255) NOT NULL,
				version VARCHAR(255) NOT NULL DEFAULT '',
				sample_name VARCHAR(255),
				input TEXT NOT NULL DEFAULT '',
				output TEXT,
				start_time TIMESTAMP WITH TIME ZONE NOT NULL,
				end_time TIMESTAMP WITH TIME ZONE,
				end_status VARCHAR(255),
				sequence_run_id BIGINT REFERENCES sequence_runs(id) ON DELETE SET NULL,
				batch_run_id BIGINT REFERENCES batch_runs(id) ON DELETE SET NULL,
				notified BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				CONSTRAINT uq_workflows_identity UNIQUE (wfl_id, wfr_id, wfv_id)
			);

			CREATE INDEX idx_workflows_run ON workflows(wfr_id, wfv_id);
			CREATE INDEX idx_workflows_batch_run_id ON workflows(batch_run_id);
			CREATE INDEX idx_workflows_matrix ON workflows(type_name, wfl_id, version, sample_name);

			CREATE TABLE fastq_list_rows (
				id BIGSERIAL PRIMARY KEY,
				rgid VARCHAR(255) NOT NULL UNIQUE,
				rgsm VARCHAR(255) NOT NULL,
				rglb VARCHAR(255) NOT NULL,
				lane INTEGER NOT NULL,
				read_1 TEXT NOT NULL,
				read_2 TEXT,
				sequence_run_id BIGINT REFERENCES sequence_runs(id) ON DELETE SET NULL
			);

			CREATE TABLE lab_metadata (
				id BIGSERIAL PRIMARY KEY,
				library_id VARCHAR(255) NOT NULL UNIQUE,
				sample_id VARCHAR(255) NOT NULL DEFAULT '',
				sample_name VARCHAR(255) NOT NULL DEFAULT '',
				subject_id VARCHAR(255) NOT NULL DEFAULT '',
				external_sample_id VARCHAR(255) NOT NULL DEFAULT '',
				phenotype VARCHAR(255) NOT NULL DEFAULT '',
				quality VARCHAR(255) NOT NULL DEFAULT '',
				source VARCHAR(255) NOT NULL DEFAULT '',
				project_name VARCHAR(255) NOT NULL DEFAULT '',
				project_owner VARCHAR(255) NOT NULL DEFAULT '',
				type VARCHAR(255) NOT NULL DEFAULT '',
				assay VARCHAR(255) NOT NULL DEFAULT '',
				workflow VARCHAR(255) NOT NULL DEFAULT '',
				coverage VARCHAR(255) NOT NULL DEFAULT ''
			);
		`,
		2: `
			CREATE INDEX idx_workflows_sequence_run_id ON workflows(sequence_run_id);
			CREATE INDEX idx_fastq_list_rows_rglb ON fastq_list_rows(rglb);
			CREATE INDEX idx_lab_metadata_subject_id ON lab_metadata(subject_id);
		`,
	}
}
