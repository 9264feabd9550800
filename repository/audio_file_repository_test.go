package repository

import (
	"database/sql"
	"database/sql/driver"
	"io"
	"strings"
	"sync"
	"testing"
)

// recordingDriver 记录经过的SQL语句并返回空结果集，
// 用于在没有真实数据库的情况下校验查询文本
type recordingDriver struct {
	mu      sync.Mutex
	queries []string
}

func (d *recordingDriver) Open(name string) (driver.Conn, error) {
	return &recordingConn{d: d}, nil
}

func (d *recordingDriver) record(q string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries = append(d.queries, q)
}

func (d *recordingDriver) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queries) == 0 {
		return ""
	}
	return d.queries[len(d.queries)-1]
}

type recordingConn struct {
	d *recordingDriver
}

func (c *recordingConn) Prepare(query string) (driver.Stmt, error) {
	c.d.record(query)
	return emptyStmt{}, nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) Begin() (driver.Tx, error) { return emptyTx{}, nil }

type emptyStmt struct{}

func (emptyStmt) Close() error  { return nil }
func (emptyStmt) NumInput() int { return -1 }
func (emptyStmt) Exec(args []driver.Value) (driver.Result, error) {
	return driver.RowsAffected(1), nil
}
func (emptyStmt) Query(args []driver.Value) (driver.Rows, error) {
	return emptyRows{}, nil
}

type emptyRows struct{}

func (emptyRows) Columns() []string              { return nil }
func (emptyRows) Close() error                   { return nil }
func (emptyRows) Next(dest []driver.Value) error { return io.EOF }

type emptyTx struct{}

func (emptyTx) Commit() error   { return nil }
func (emptyTx) Rollback() error { return nil }

var (
	recDriver   = &recordingDriver{}
	recRegister sync.Once
)

func openRecordingDB(t *testing.T) (*sql.DB, *recordingDriver) {
	t.Helper()
	recRegister.Do(func() { sql.Register("recording", recDriver) })
	db, err := sql.Open("recording", "")
	if err != nil {
		t.Fatalf("failed to open recording db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, recDriver
}

// 同一秒内上传的文件必须有稳定的列表顺序，所以时间序之外还要按id排
func TestAudioFileListUsesStableOrdering(t *testing.T) {
	db, drv := openRecordingDB(t)
	repo := NewMySQLAudioFileRepository(db)

	if _, err := repo.GetAudioFilesByUserID(7); err != nil {
		t.Fatalf("GetAudioFilesByUserID failed: %v", err)
	}
	if q := drv.last(); !strings.Contains(q, "ORDER BY uploaded_at DESC, id DESC") {
		t.Errorf("audio file list query lacks an id tiebreaker: %s", q)
	}
}

func TestMergeJobListUsesStableOrdering(t *testing.T) {
	db, drv := openRecordingDB(t)
	repo := NewMySQLMergeJobRepository(db)

	if _, err := repo.GetMergeJobsByUserID(7); err != nil {
		t.Fatalf("GetMergeJobsByUserID failed: %v", err)
	}
	if q := drv.last(); !strings.Contains(q, "ORDER BY created_at DESC, id DESC") {
		t.Errorf("merge job list query lacks an id tiebreaker: %s", q)
	}
}
