package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed entities.sql
var entitiesSQL string

//go:embed relations.sql
var relationsSQL string

//go:embed dedup.sql
var dedupSQL string

//go:embed shards.sql
var shardsSQL string

//go:embed resources.sql
var resourcesSQL string

//go:embed blobs.sql
var blobsSQL string

//go:embed jobs.sql
var jobsSQL string

// Function lists for verification
var EntitiesFunctions = []string{
	"init_entities",
	"insert_entity",
	"select_entity",
	"select_entities_by_type",
	"delete_entity",
	"select_similar_entities",
}

var RelationsFunctions = []string{
	"init_relations",
	"insert_relation",
	"select_relations_from_entity",
	"select_relations_to_entity",
	"delete_relations_for_entity",
}

var DedupFunctions = []string{
	"init_dedup",
	"upsert_dedup_entry",
	"select_dedup_entry",
	"select_pending_dedup_entry",
	"select_dedup_entries",
	"update_dedup_entry",
}

var ShardsFunctions = []string{
	"init_shards",
	"create_staged_shards",
	"select_shards_by_campaign",
	"bulk_update_shard_statuses",
	"select_shard_stats",
	"search_approved_shards",
}

var ResourcesFunctions = []string{
	"init_resources",
	"insert_resource",
	"select_resource",
	"select_resources_by_campaign",
	"delete_resource",
}

var BlobsFunctions = []string{
	"init_blobs",
	"put_blob",
	"get_blob",
	"delete_blob",
	"list_blobs",
}

var JobsFunctions = []string{
	"init_jobs",
	"acquire_extraction_job",
	"set_extraction_job_status",
	"select_extraction_job",
	"select_active_extraction_jobs",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadEntitiesSql loads entity-related SQL functions
func LoadEntitiesSql(db *sql.DB, force bool) error {
	return loadSql(db, force, "entities", entitiesSQL, EntitiesFunctions)
}

// LoadRelationsSql loads relation-related SQL functions
func LoadRelationsSql(db *sql.DB, force bool) error {
	return loadSql(db, force, "relations", relationsSQL, RelationsFunctions)
}

// LoadDedupSql loads deduplication-related SQL functions
func LoadDedupSql(db *sql.DB, force bool) error {
	return loadSql(db, force, "dedup", dedupSQL, DedupFunctions)
}

// LoadShardsSql loads shard-related SQL functions
func LoadShardsSql(db *sql.DB, force bool) error {
	return loadSql(db, force, "shards", shardsSQL, ShardsFunctions)
}

// LoadResourcesSql loads resource-related SQL functions
func LoadResourcesSql(db *sql.DB, force bool) error {
	return loadSql(db, force, "resources", resourcesSQL, ResourcesFunctions)
}

// LoadBlobsSql loads blob-related SQL functions
func LoadBlobsSql(db *sql.DB, force bool) error {
	return loadSql(db, force, "blobs", blobsSQL, BlobsFunctions)
}

// LoadJobsSql loads extraction-job-related SQL functions
func LoadJobsSql(db *sql.DB, force bool) error {
	return loadSql(db, force, "jobs", jobsSQL, JobsFunctions)
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadEntitiesSql(db, force); err != nil {
		return err
	}

	if err := LoadRelationsSql(db, force); err != nil {
		return err
	}

	if err := LoadDedupSql(db, force); err != nil {
		return err
	}

	if err := LoadShardsSql(db, force); err != nil {
		return err
	}

	if err := LoadResourcesSql(db, force); err != nil {
		return err
	}

	if err := LoadBlobsSql(db, force); err != nil {
		return err
	}

	if err := LoadJobsSql(db, force); err != nil {
		return err
	}

	return nil
}

func loadSql(db *sql.DB, force bool, name string, sqlText string, functions []string) error {
	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(sqlText)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkFunctions(db, functions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Printf("SQL %s functions loaded successfully", name)
	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
