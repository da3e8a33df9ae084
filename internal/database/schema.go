package database

const schema = `
CREATE TABLE IF NOT EXISTS kv_entries (
    k VARCHAR(191) NOT NULL PRIMARY KEY,
    v MEDIUMBLOB NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);
`
