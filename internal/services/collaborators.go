package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rulify/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Collaborator capabilities consumed by the action runner. Delivery mechanics
// (mail provider, push gateway, workflow engine) live outside this service;
// the engine only calls these interfaces.

type NotificationSender interface {
	Send(ctx context.Context, userID, title, message string, data map[string]interface{}, channels []string) error
}

type EmailSender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

type DataStore interface {
	Insert(ctx context.Context, table string, values map[string]interface{}) error
	Update(ctx context.Context, table string, where, values map[string]interface{}) (int64, error)
	Delete(ctx context.Context, table string, where map[string]interface{}) (int64, error)
	Select(ctx context.Context, table string, where map[string]interface{}) ([]map[string]interface{}, error)
}

type FileStore interface {
	Move(ctx context.Context, source, destination string) error
	Copy(ctx context.Context, source, destination string) error
	Delete(ctx context.Context, path string) error
	Rename(ctx context.Context, source, destination string) error
}

type WorkflowStore interface {
	Start(ctx context.Context, workflowID string, data map[string]interface{}) (string, error)
}

type AssignmentStore interface {
	Assign(ctx context.Context, entityID string, assignees []string) (int, error)
}

// logNotificationSender 默认实现：记录日志。生产环境替换为真实推送网关。
type logNotificationSender struct {
	logger *logrus.Logger
}

func NewLogNotificationSender(logger *logrus.Logger) NotificationSender {
	if logger == nil {
		logger = logrus.New()
	}
	return &logNotificationSender{logger: logger}
}

func (s *logNotificationSender) Send(ctx context.Context, userID, title, message string, data map[string]interface{}, channels []string) error {
	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"channels": channels,
	}).Infof("notification: %s - %s", title, message)
	return nil
}

// logEmailSender 默认实现：记录日志。
type logEmailSender struct {
	logger *logrus.Logger
}

func NewLogEmailSender(logger *logrus.Logger) EmailSender {
	if logger == nil {
		logger = logrus.New()
	}
	return &logEmailSender{logger: logger}
}

func (s *logEmailSender) Send(ctx context.Context, to []string, subject, body string) error {
	s.logger.WithField("to", to).Infof("email: %s", subject)
	return nil
}

// gormDataStore executes database actions against arbitrary tables.
type gormDataStore struct {
	db *gorm.DB
}

func NewGormDataStore(db *gorm.DB) DataStore {
	return &gormDataStore{db: db}
}

func (s *gormDataStore) Insert(ctx context.Context, table string, values map[string]interface{}) error {
	return s.db.WithContext(ctx).Table(table).Create(values).Error
}

func (s *gormDataStore) Update(ctx context.Context, table string, where, values map[string]interface{}) (int64, error) {
	res := s.db.WithContext(ctx).Table(table).Where(where).Updates(values)
	return res.RowsAffected, res.Error
}

func (s *gormDataStore) Delete(ctx context.Context, table string, where map[string]interface{}) (int64, error) {
	if len(where) == 0 {
		return 0, fmt.Errorf("delete on %s requires a where clause", table)
	}
	res := s.db.WithContext(ctx).Table(table).Where(where).Delete(nil)
	return res.RowsAffected, res.Error
}

func (s *gormDataStore) Select(ctx context.Context, table string, where map[string]interface{}) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	err := s.db.WithContext(ctx).Table(table).Where(where).Find(&rows).Error
	return rows, err
}

// localFileStore confines file operations under a root directory.
type localFileStore struct {
	root string
}

func NewLocalFileStore(root string) FileStore {
	return &localFileStore{root: root}
}

func (s *localFileStore) resolve(p string) (string, error) {
	full := filepath.Join(s.root, filepath.Clean("/"+p))
	return full, nil
}

func (s *localFileStore) Move(ctx context.Context, source, destination string) error {
	return s.Rename(ctx, source, destination)
}

func (s *localFileStore) Copy(ctx context.Context, source, destination string) error {
	src, err := s.resolve(source)
	if err != nil {
		return err
	}
	dst, err := s.resolve(destination)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

func (s *localFileStore) Delete(ctx context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(full)
}

func (s *localFileStore) Rename(ctx context.Context, source, destination string) error {
	src, err := s.resolve(source)
	if err != nil {
		return err
	}
	dst, err := s.resolve(destination)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

// gormWorkflowStore records started workflows; a real engine would pick these
// up from the workflow_runs table.
type gormWorkflowStore struct {
	db *gorm.DB
}

func NewGormWorkflowStore(db *gorm.DB) WorkflowStore {
	return &gormWorkflowStore{db: db}
}

func (s *gormWorkflowStore) Start(ctx context.Context, workflowID string, data map[string]interface{}) (string, error) {
	run := &models.WorkflowRun{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Input:      data,
		Status:     "started",
		CreatedAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return "", err
	}
	return run.ID, nil
}

// gormAssignmentStore persists one assignment row per assignee.
type gormAssignmentStore struct {
	db *gorm.DB
}

func NewGormAssignmentStore(db *gorm.DB) AssignmentStore {
	return &gormAssignmentStore{db: db}
}

func (s *gormAssignmentStore) Assign(ctx context.Context, entityID string, assignees []string) (int, error) {
	if entityID == "" {
		return 0, fmt.Errorf("entity id required")
	}
	count := 0
	for _, a := range assignees {
		if a == "" {
			continue
		}
		row := &models.Assignment{
			EntityID:   entityID,
			AssignedTo: a,
			CreatedAt:  time.Now(),
		}
		if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
