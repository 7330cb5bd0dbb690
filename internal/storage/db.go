package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"partrec/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS projects (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS store_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  projectId INTEGER,
  partNumber TEXT NOT NULL,
  lineCode TEXT,
  description TEXT,
  category TEXT,
  subcategory TEXT,
  cost REAL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(projectId) REFERENCES projects(id)
);
CREATE INDEX IF NOT EXISTS idx_store_items_project ON store_items(projectId);

CREATE TABLE IF NOT EXISTS supplier_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  projectId INTEGER,
  partNumber TEXT NOT NULL,
  lineCode TEXT,
  description TEXT,
  category TEXT,
  subcategory TEXT,
  cost REAL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(projectId) REFERENCES projects(id)
);
CREATE INDEX IF NOT EXISTS idx_supplier_items_project ON supplier_items(projectId);

CREATE TABLE IF NOT EXISTS interchange_mappings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sourceSku TEXT NOT NULL,
  targetSku TEXT NOT NULL,
  confidence REAL NOT NULL DEFAULT 1.0,
  projectId INTEGER
);
CREATE INDEX IF NOT EXISTS idx_interchange_source ON interchange_mappings(sourceSku);

CREATE TABLE IF NOT EXISTS line_code_translations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sourceLineCode TEXT NOT NULL,
  targetLineCode TEXT NOT NULL,
  priority INTEGER NOT NULL DEFAULT 0,
  projectId INTEGER
);

CREATE TABLE IF NOT EXISTS part_number_interchanges (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sourceLineCode TEXT NOT NULL,
  sourcePartNumber TEXT NOT NULL,
  targetLineCode TEXT NOT NULL,
  targetPartNumber TEXT NOT NULL,
  priority INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS transformation_rules (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  fromPattern TEXT NOT NULL,
  toPattern TEXT NOT NULL,
  ruleType TEXT NOT NULL,
  confidence REAL NOT NULL,
  projectId INTEGER,
  active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS master_rules (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  storePartNumber TEXT NOT NULL,
  supplierPartNumber TEXT,
  ruleType TEXT NOT NULL,
  scope TEXT NOT NULL DEFAULT 'GLOBAL',
  projectId INTEGER,
  confidence REAL NOT NULL DEFAULT 1.0,
  enabled INTEGER NOT NULL DEFAULT 1,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_master_rules_store ON master_rules(storePartNumber);

CREATE TABLE IF NOT EXISTS vendor_action_rules (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  supplierLineCode TEXT NOT NULL,
  categoryPattern TEXT NOT NULL DEFAULT '*',
  subcategoryPattern TEXT NOT NULL DEFAULT '*',
  action TEXT NOT NULL,
  projectId INTEGER,
  active INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_vendor_rules_line ON vendor_action_rules(supplierLineCode);

CREATE TABLE IF NOT EXISTS match_history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  kind TEXT NOT NULL,
  storePartNumber TEXT NOT NULL,
  supplierPartNumber TEXT NOT NULL,
  projectId INTEGER,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(kind, storePartNumber, supplierPartNumber)
);

CREATE TABLE IF NOT EXISTS match_candidates (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  storeItemId INTEGER NOT NULL,
  supplierItemId INTEGER NOT NULL,
  method TEXT NOT NULL,
  confidence REAL NOT NULL,
  matchStage INTEGER NOT NULL,
  featuresJson TEXT NOT NULL,
  vendorAction TEXT NOT NULL DEFAULT 'NONE',
  status TEXT NOT NULL DEFAULT 'PENDING',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(runId, storeItemId, supplierItemId),
  FOREIGN KEY(storeItemId) REFERENCES store_items(id),
  FOREIGN KEY(supplierItemId) REFERENCES supplier_items(id)
);
CREATE INDEX IF NOT EXISTS idx_candidates_run ON match_candidates(runId);
CREATE INDEX IF NOT EXISTS idx_candidates_status ON match_candidates(status);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  batchOffset INTEGER NOT NULL,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) InsertStoreItems(items []internal.PartRecord) (int, error) {
	return d.insertItems("store_items", items)
}

func (d *DB) InsertSupplierItems(items []internal.PartRecord) (int, error) {
	return d.insertItems("supplier_items", items)
}

func (d *DB) insertItems(table string, items []internal.PartRecord) (int, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(fmt.Sprintf(`
INSERT INTO %s (projectId, partNumber, lineCode, description, category, subcategory, cost)
VALUES (?, ?, ?, ?, ?, ?, ?)`, table))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, item := range items {
		if strings.TrimSpace(item.PartNumber) == "" {
			continue
		}
		if _, err := stmt.Exec(item.ProjectID, item.PartNumber, item.LineCode, item.Description, item.Category, item.Subcategory, item.Cost); err != nil {
			return inserted, err
		}
		inserted++
	}

	return inserted, tx.Commit()
}

const itemColumns = `id, projectId, partNumber, lineCode, description, category, subcategory, cost`

func scanItems(rows *sql.Rows) ([]internal.PartRecord, error) {
	var out []internal.PartRecord
	for rows.Next() {
		var rec internal.PartRecord
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.PartNumber, &rec.LineCode, &rec.Description, &rec.Category, &rec.Subcategory, &rec.Cost); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListStoreItems returns an offset-ordered slice of the store population.
// limit <= 0 means no limit.
func (d *DB) ListStoreItems(projectID *int, offset, limit int) ([]internal.PartRecord, error) {
	query := `SELECT ` + itemColumns + ` FROM store_items WHERE (?1 IS NULL OR projectId = ?1) ORDER BY id ASC`
	args := []any{projectID}
	if limit > 0 {
		query += ` LIMIT ?2 OFFSET ?3`
		args = append(args, limit, offset)
	}
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func (d *DB) CountStoreItems(projectID *int) (int, error) {
	var count int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM store_items WHERE (?1 IS NULL OR projectId = ?1)`, projectID).Scan(&count)
	return count, err
}

func (d *DB) ListSupplierItems(projectID *int) ([]internal.PartRecord, error) {
	rows, err := d.conn.Query(`SELECT `+itemColumns+` FROM supplier_items WHERE (?1 IS NULL OR projectId = ?1) ORDER BY id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func (d *DB) GetStoreItem(id int) (*internal.PartRecord, error) {
	return d.getItem("store_items", id)
}

func (d *DB) GetSupplierItem(id int) (*internal.PartRecord, error) {
	return d.getItem("supplier_items", id)
}

func (d *DB) getItem(table string, id int) (*internal.PartRecord, error) {
	var rec internal.PartRecord
	err := d.conn.QueryRow(`SELECT `+itemColumns+` FROM `+table+` WHERE id = ?`, id).Scan(
		&rec.ID, &rec.ProjectID, &rec.PartNumber, &rec.LineCode, &rec.Description, &rec.Category, &rec.Subcategory, &rec.Cost,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (d *DB) ListInterchangeMappings(projectID *int) ([]internal.InterchangeMapping, error) {
	rows, err := d.conn.Query(`
SELECT id, sourceSku, targetSku, confidence, projectId
FROM interchange_mappings
WHERE projectId IS NULL OR (?1 IS NOT NULL AND projectId = ?1)
ORDER BY id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.InterchangeMapping
	for rows.Next() {
		var m internal.InterchangeMapping
		if err := rows.Scan(&m.ID, &m.SourceSku, &m.TargetSku, &m.Confidence, &m.ProjectID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *DB) InsertInterchangeMapping(m internal.InterchangeMapping) (int64, error) {
	result, err := d.conn.Exec(`
INSERT INTO interchange_mappings (sourceSku, targetSku, confidence, projectId)
VALUES (?, ?, ?, ?)`, m.SourceSku, m.TargetSku, m.Confidence, m.ProjectID)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) ListLineCodeTranslations(projectID *int) ([]internal.LineCodeTranslation, error) {
	rows, err := d.conn.Query(`
SELECT id, sourceLineCode, targetLineCode, priority, projectId
FROM line_code_translations
WHERE projectId IS NULL OR (?1 IS NOT NULL AND projectId = ?1)
ORDER BY id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.LineCodeTranslation
	for rows.Next() {
		var t internal.LineCodeTranslation
		if err := rows.Scan(&t.ID, &t.SourceLineCode, &t.TargetLineCode, &t.Priority, &t.ProjectID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (d *DB) InsertLineCodeTranslation(t internal.LineCodeTranslation) (int64, error) {
	result, err := d.conn.Exec(`
INSERT INTO line_code_translations (sourceLineCode, targetLineCode, priority, projectId)
VALUES (?, ?, ?, ?)`, t.SourceLineCode, t.TargetLineCode, t.Priority, t.ProjectID)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) ListPartNumberInterchanges() ([]internal.PartNumberInterchange, error) {
	rows, err := d.conn.Query(`
SELECT id, sourceLineCode, sourcePartNumber, targetLineCode, targetPartNumber, priority
FROM part_number_interchanges ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.PartNumberInterchange
	for rows.Next() {
		var p internal.PartNumberInterchange
		if err := rows.Scan(&p.ID, &p.SourceLineCode, &p.SourcePartNumber, &p.TargetLineCode, &p.TargetPartNumber, &p.Priority); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) InsertPartNumberInterchange(p internal.PartNumberInterchange) (int64, error) {
	result, err := d.conn.Exec(`
INSERT INTO part_number_interchanges (sourceLineCode, sourcePartNumber, targetLineCode, targetPartNumber, priority)
VALUES (?, ?, ?, ?, ?)`, p.SourceLineCode, p.SourcePartNumber, p.TargetLineCode, p.TargetPartNumber, p.Priority)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) ListTransformationRules() ([]internal.TransformationRule, error) {
	rows, err := d.conn.Query(`
SELECT id, fromPattern, toPattern, ruleType, confidence, projectId, active
FROM transformation_rules WHERE active = 1 ORDER BY confidence DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.TransformationRule
	for rows.Next() {
		var r internal.TransformationRule
		if err := rows.Scan(&r.ID, &r.FromPattern, &r.ToPattern, &r.RuleType, &r.Confidence, &r.ProjectID, &r.Active); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) InsertTransformationRule(r internal.TransformationRule) (int64, error) {
	result, err := d.conn.Exec(`
INSERT INTO transformation_rules (fromPattern, toPattern, ruleType, confidence, projectId, active)
VALUES (?, ?, ?, ?, ?, ?)`, r.FromPattern, r.ToPattern, r.RuleType, r.Confidence, r.ProjectID, r.Active)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) ListMasterRules() ([]internal.MasterRule, error) {
	rows, err := d.conn.Query(`
SELECT id, storePartNumber, supplierPartNumber, ruleType, scope, projectId, confidence, enabled
FROM master_rules WHERE enabled = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MasterRule
	for rows.Next() {
		var r internal.MasterRule
		if err := rows.Scan(&r.ID, &r.StorePartNumber, &r.SupplierPartNumber, &r.RuleType, &r.Scope, &r.ProjectID, &r.Confidence, &r.Enabled); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) FindMasterRule(storePart string, supplierPart *string, ruleType internal.MasterRuleType) (*internal.MasterRule, error) {
	var r internal.MasterRule
	err := d.conn.QueryRow(`
SELECT id, storePartNumber, supplierPartNumber, ruleType, scope, projectId, confidence, enabled
FROM master_rules
WHERE storePartNumber = ?1
  AND (supplierPartNumber IS ?2 OR supplierPartNumber = ?2)
  AND ruleType = ?3 AND enabled = 1
LIMIT 1`, storePart, supplierPart, string(ruleType)).Scan(
		&r.ID, &r.StorePartNumber, &r.SupplierPartNumber, &r.RuleType, &r.Scope, &r.ProjectID, &r.Confidence, &r.Enabled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DB) InsertMasterRule(r internal.MasterRule) (int64, error) {
	result, err := d.conn.Exec(`
INSERT INTO master_rules (storePartNumber, supplierPartNumber, ruleType, scope, projectId, confidence, enabled)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.StorePartNumber, r.SupplierPartNumber, string(r.RuleType), string(r.Scope), r.ProjectID, r.Confidence, r.Enabled)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) ListVendorActionRules() ([]internal.VendorActionRule, error) {
	return d.queryVendorRules(`
SELECT id, supplierLineCode, categoryPattern, subcategoryPattern, action, projectId, active
FROM vendor_action_rules WHERE active = 1 ORDER BY id ASC`)
}

// ListVendorActionRulesByLineCodes is the bulk fetch for batch resolution:
// one query covering every distinct line code in the batch.
func (d *DB) ListVendorActionRulesByLineCodes(lineCodes []string) ([]internal.VendorActionRule, error) {
	if len(lineCodes) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(lineCodes)), ",")
	args := make([]any, 0, len(lineCodes))
	for _, lc := range lineCodes {
		args = append(args, strings.ToUpper(strings.TrimSpace(lc)))
	}
	return d.queryVendorRules(`
SELECT id, supplierLineCode, categoryPattern, subcategoryPattern, action, projectId, active
FROM vendor_action_rules WHERE active = 1 AND UPPER(supplierLineCode) IN (`+placeholders+`) ORDER BY id ASC`, args...)
}

func (d *DB) InsertVendorActionRule(r internal.VendorActionRule) (int64, error) {
	result, err := d.conn.Exec(`
INSERT INTO vendor_action_rules (supplierLineCode, categoryPattern, subcategoryPattern, action, projectId, active)
VALUES (?, ?, ?, ?, ?, ?)`, r.SupplierLineCode, r.CategoryPattern, r.SubcategoryPattern, string(r.Action), r.ProjectID, r.Active)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) queryVendorRules(query string, args ...any) ([]internal.VendorActionRule, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.VendorActionRule
	for rows.Next() {
		var r internal.VendorActionRule
		if err := rows.Scan(&r.ID, &r.SupplierLineCode, &r.CategoryPattern, &r.SubcategoryPattern, &r.Action, &r.ProjectID, &r.Active); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) ListMatchHistory(kind internal.HistoryKind) ([]internal.MatchHistory, error) {
	rows, err := d.conn.Query(`
SELECT storePartNumber, supplierPartNumber, projectId
FROM match_history WHERE kind = ? ORDER BY id ASC`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MatchHistory
	for rows.Next() {
		var h internal.MatchHistory
		if err := rows.Scan(&h.StorePartNumber, &h.SupplierPartNumber, &h.ProjectID); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (d *DB) InsertMatchHistory(kind internal.HistoryKind, storePart, supplierPart string, projectID *int) error {
	_, err := d.conn.Exec(`
INSERT INTO match_history (kind, storePartNumber, supplierPartNumber, projectId)
VALUES (?, ?, ?, ?)
ON CONFLICT(kind, storePartNumber, supplierPartNumber) DO NOTHING`,
		string(kind), storePart, supplierPart, projectID)
	return err
}

// MatchedStoreItemIDs is the dedup set loaded before every batch.
func (d *DB) MatchedStoreItemIDs(runID string) (map[int]struct{}, error) {
	rows, err := d.conn.Query(`SELECT DISTINCT storeItemId FROM match_candidates WHERE runId = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int]struct{}{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// ReplaceCandidates atomically replaces a batch's candidate set: prior rows
// for the processed store items are cleared, then the fresh set is inserted.
func (d *DB) ReplaceCandidates(runID string, storeItemIDs []int, candidates []internal.MatchCandidate) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range storeItemIDs {
		if _, err := tx.Exec(`DELETE FROM match_candidates WHERE runId = ? AND storeItemId = ?`, runID, id); err != nil {
			return err
		}
	}

	stmt, err := tx.Prepare(`
INSERT INTO match_candidates (runId, storeItemId, supplierItemId, method, confidence, matchStage, featuresJson, vendorAction, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(runId, storeItemId, supplierItemId) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candidates {
		featuresJSON, _ := json.Marshal(c.Features)
		if _, err := stmt.Exec(runID, c.StoreItemID, c.SupplierItemID, string(c.Method), c.Confidence, c.MatchStage, string(featuresJSON), string(c.VendorAction), string(c.Status)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

const candidateColumns = `id, runId, storeItemId, supplierItemId, method, confidence, matchStage, featuresJson, vendorAction, status`

func scanCandidates(rows *sql.Rows) ([]internal.MatchCandidate, error) {
	var out []internal.MatchCandidate
	for rows.Next() {
		var c internal.MatchCandidate
		var featuresJSON string
		if err := rows.Scan(&c.ID, &c.RunID, &c.StoreItemID, &c.SupplierItemID, &c.Method, &c.Confidence, &c.MatchStage, &featuresJSON, &c.VendorAction, &c.Status); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(featuresJSON), &c.Features)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *DB) ListCandidates(runID string) ([]internal.MatchCandidate, error) {
	rows, err := d.conn.Query(`SELECT `+candidateColumns+` FROM match_candidates WHERE runId = ? ORDER BY storeItemId ASC, supplierItemId ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

func (d *DB) GetCandidate(id int) (*internal.MatchCandidate, error) {
	rows, err := d.conn.Query(`SELECT `+candidateColumns+` FROM match_candidates WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	candidates, err := scanCandidates(rows)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

func (d *DB) UpdateCandidateStatus(id int, status internal.CandidateStatus) error {
	_, err := d.conn.Exec(`UPDATE match_candidates SET status = ? WHERE id = ?`, string(status), id)
	return err
}

// ListPairsByStatus joins candidates with the part numbers on both sides,
// for pattern detection and bulk approval suggestions.
func (d *DB) ListPairsByStatus(status internal.CandidateStatus) ([]internal.CandidatePair, error) {
	rows, err := d.conn.Query(`
SELECT c.id, c.runId, c.storeItemId, c.supplierItemId, c.method, c.confidence, c.matchStage, c.featuresJson, c.vendorAction, c.status,
       si.partNumber, si.lineCode, su.partNumber, su.lineCode
FROM match_candidates c
JOIN store_items si ON si.id = c.storeItemId
JOIN supplier_items su ON su.id = c.supplierItemId
WHERE c.status = ?
ORDER BY c.id ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CandidatePair
	for rows.Next() {
		var p internal.CandidatePair
		var featuresJSON string
		if err := rows.Scan(
			&p.Candidate.ID, &p.Candidate.RunID, &p.Candidate.StoreItemID, &p.Candidate.SupplierItemID,
			&p.Candidate.Method, &p.Candidate.Confidence, &p.Candidate.MatchStage, &featuresJSON,
			&p.Candidate.VendorAction, &p.Candidate.Status,
			&p.StorePartNumber, &p.StoreLineCode, &p.SupplierPartNumber, &p.SupplierLineCode,
		); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(featuresJSON), &p.Candidate.Features)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) GetCandidatePair(id int) (*internal.CandidatePair, error) {
	rows, err := d.conn.Query(`
SELECT c.id, c.runId, c.storeItemId, c.supplierItemId, c.method, c.confidence, c.matchStage, c.featuresJson, c.vendorAction, c.status,
       si.partNumber, si.lineCode, su.partNumber, su.lineCode
FROM match_candidates c
JOIN store_items si ON si.id = c.storeItemId
JOIN supplier_items su ON su.id = c.supplierItemId
WHERE c.id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var p internal.CandidatePair
	var featuresJSON string
	if err := rows.Scan(
		&p.Candidate.ID, &p.Candidate.RunID, &p.Candidate.StoreItemID, &p.Candidate.SupplierItemID,
		&p.Candidate.Method, &p.Candidate.Confidence, &p.Candidate.MatchStage, &featuresJSON,
		&p.Candidate.VendorAction, &p.Candidate.Status,
		&p.StorePartNumber, &p.StoreLineCode, &p.SupplierPartNumber, &p.SupplierLineCode,
	); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(featuresJSON), &p.Candidate.Features)
	return &p, nil
}

func (d *DB) InsertRun(runID string, batchOffset int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (runId, batchOffset, timingsJson, countsJson) VALUES (?, ?, ?, ?)`,
		runID, batchOffset, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) ProjectExists(id int) (bool, error) {
	var one int
	err := d.conn.QueryRow(`SELECT 1 FROM projects WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *DB) UpsertProject(name string) (int, error) {
	_, err := d.conn.Exec(`INSERT INTO projects (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
	if err != nil {
		return 0, err
	}
	var id int
	if err := d.conn.QueryRow(`SELECT id FROM projects WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (d *DB) GetExportRows(runID string) ([]internal.CandidateExportRow, error) {
	rows, err := d.conn.Query(`
SELECT
  c.id, c.storeItemId, si.partNumber, si.lineCode, si.description, si.cost,
  c.supplierItemId, su.partNumber, su.lineCode, su.description, su.cost,
  c.method, c.matchStage, c.confidence, c.vendorAction, c.status, c.featuresJson
FROM match_candidates c
JOIN store_items si ON si.id = c.storeItemId
JOIN supplier_items su ON su.id = c.supplierItemId
WHERE c.runId = ?
ORDER BY c.confidence DESC, c.storeItemId ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CandidateExportRow
	for rows.Next() {
		var row internal.CandidateExportRow
		if err := rows.Scan(
			&row.CandidateID, &row.StoreItemID, &row.StorePartNumber, &row.StoreLineCode, &row.StoreDescription, &row.StoreCost,
			&row.SupplierItemID, &row.SupplierPart, &row.SupplierLineCode, &row.SupplierDesc, &row.SupplierCost,
			&row.Method, &row.MatchStage, &row.Confidence, &row.VendorAction, &row.Status, &row.FeaturesJSON,
		); err != nil {
			return nil, err
		}

		var features internal.MatchFeatures
		if json.Unmarshal([]byte(row.FeaturesJSON), &features) == nil && features.RunnerUpID != nil {
			if runnerUp, err := d.GetSupplierItem(*features.RunnerUpID); err == nil && runnerUp != nil {
				row.RunnerUpPart = &runnerUp.PartNumber
				row.RunnerUpScore = features.RunnerUpScore
			}
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

func (d *DB) MustCandidate(id int) (internal.MatchCandidate, error) {
	c, err := d.GetCandidate(id)
	if err != nil {
		return internal.MatchCandidate{}, err
	}
	if c == nil {
		return internal.MatchCandidate{}, fmt.Errorf("candidate not found: id=%d", id)
	}
	return *c, nil
}
