package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"path"
	"sync"
	"time"

	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FileRef 文件定位信息
type FileRef struct {
	ContextID int64
	Component string
	Area      string
	ItemID    int64
	Path      string
	Name      string
}

// PathNameHash 文件定位哈希
func (r FileRef) PathNameHash() string {
	return model.PathNameHashFor(r.ContextID, r.Component, r.Area, r.ItemID, r.Path, r.Name)
}

// FileStorage 文件存储接口
type FileStorage interface {
	FileExists(ctx context.Context, ref FileRef) (bool, error)
	GetFile(ctx context.Context, ref FileRef) (*StoredFile, error)
	GetFileByID(ctx context.Context, id int64) (*StoredFile, error)
	CreateFileFromBytes(ctx context.Context, ref FileRef, content []byte) (*StoredFile, error)
	ReplaceContent(ctx context.Context, file *StoredFile, content []byte) (*StoredFile, error)
	DeleteFile(ctx context.Context, id int64) error
	DeleteAreaFiles(ctx context.Context, contextID int64, component, area string, itemID *int64) error
	Content(ctx context.Context, file *StoredFile) ([]byte, error)
	// WithDB 返回绑定到事务的存储,内容删除推迟到 ReleasePending
	WithDB(tx *gorm.DB) FileStorage
	// ReleasePending 删除事务中释放或新写入但不再被引用的内容,提交或回滚后都应调用
	ReleasePending(ctx context.Context) error
}

// fileStorage 文件存储实现
type fileStorage struct {
	db      *gorm.DB
	root    *gorm.DB
	repo    repository.FileRepository
	backend Backend
	logger  logrus.FieldLogger
	now     func() time.Time

	deferred bool
	mu       sync.Mutex
	pending  []string
}

// NewFileStorage 创建文件存储
func NewFileStorage(db *gorm.DB, backend Backend, logger logrus.FieldLogger) FileStorage {
	return &fileStorage{
		db:      db,
		root:    db,
		repo:    repository.NewFileRepository(db),
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
}

// WithDB 绑定事务
func (s *fileStorage) WithDB(tx *gorm.DB) FileStorage {
	return &fileStorage{
		db:       tx,
		root:     s.root,
		repo:     repository.NewFileRepository(tx),
		backend:  s.backend,
		logger:   s.logger,
		now:      s.now,
		deferred: true,
	}
}

// FileExists 判断文件是否存在
func (s *fileStorage) FileExists(ctx context.Context, ref FileRef) (bool, error) {
	_, err := s.repo.FindByPathNameHash(ctx, ref.PathNameHash())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to find file: %w", err)
	}
	return true, nil
}

// GetFile 获取文件
func (s *fileStorage) GetFile(ctx context.Context, ref FileRef) (*StoredFile, error) {
	m, err := s.repo.FindByPathNameHash(ctx, ref.PathNameHash())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find file: %w", err)
	}
	return s.wrap(m), nil
}

// GetFileByID 根据 ID 获取文件
func (s *fileStorage) GetFileByID(ctx context.Context, id int64) (*StoredFile, error) {
	m, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find file: %w", err)
	}
	return s.wrap(m), nil
}

// CreateFileFromBytes 创建文件,目标位置已有文件时返回 ErrFileExists
func (s *fileStorage) CreateFileFromBytes(ctx context.Context, ref FileRef, content []byte) (*StoredFile, error) {
	if ref.Path == "" {
		ref.Path = "/"
	}

	exists, err := s.FileExists(ctx, ref)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s%s", ErrFileExists, ref.Path, ref.Name)
	}

	contentHash, mimeType, err := s.putContent(ctx, ref.Name, content)
	if err != nil {
		return nil, err
	}

	now := s.now()
	m := &model.FileModel{
		ContextID:    ref.ContextID,
		Component:    ref.Component,
		FileArea:     ref.Area,
		ItemID:       ref.ItemID,
		FilePath:     ref.Path,
		FileName:     ref.Name,
		PathNameHash: ref.PathNameHash(),
		ContentHash:  contentHash,
		FileSize:     int64(len(content)),
		MimeType:     mimeType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":   m.ID,
		"component": m.Component,
		"area":      m.FileArea,
		"item_id":   m.ItemID,
		"size":      m.FileSize,
	}).Debug("file created")

	return s.wrap(m), nil
}

// ReplaceContent 替换文件内容,记录 ID 保持不变
func (s *fileStorage) ReplaceContent(ctx context.Context, file *StoredFile, content []byte) (*StoredFile, error) {
	m, err := s.repo.FindByID(ctx, file.ID())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find file: %w", err)
	}

	contentHash, mimeType, err := s.putContent(ctx, m.FileName, content)
	if err != nil {
		return nil, err
	}

	oldHash := m.ContentHash
	m.ContentHash = contentHash
	m.FileSize = int64(len(content))
	m.MimeType = mimeType
	m.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to update file record: %w", err)
	}

	if oldHash != contentHash {
		if err := s.release(ctx, oldHash); err != nil {
			return nil, err
		}
	}
	return s.wrap(m), nil
}

// DeleteFile 删除文件记录,内容不再被引用时一并删除
func (s *fileStorage) DeleteFile(ctx context.Context, id int64) error {
	m, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find file: %w", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	return s.release(ctx, m.ContentHash)
}

// DeleteAreaFiles 删除区域内的文件,itemID 为 nil 时删除整个区域
func (s *fileStorage) DeleteAreaFiles(ctx context.Context, contextID int64, component, area string, itemID *int64) error {
	files, err := s.repo.FindByArea(ctx, contextID, component, area, itemID)
	if err != nil {
		return fmt.Errorf("failed to find area files: %w", err)
	}
	for _, f := range files {
		if err := s.DeleteFile(ctx, f.ID); err != nil {
			return err
		}
	}
	return nil
}

// Content 读取文件内容
func (s *fileStorage) Content(ctx context.Context, file *StoredFile) ([]byte, error) {
	data, err := s.backend.Get(ctx, blobKey(file.ContentHash()))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %d: %w", file.ID(), err)
	}
	return data, nil
}

// ReleasePending 删除事务期间释放或写入后不再被引用的内容
func (s *fileStorage) ReleasePending(ctx context.Context) error {
	s.mu.Lock()
	hashes := s.pending
	s.pending = nil
	s.mu.Unlock()

	var errs []error
	for _, h := range hashes {
		if err := s.removeIfOrphan(ctx, repository.NewFileRepository(s.root), h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// putContent 写入内容并返回内容哈希和 MIME 类型
func (s *fileStorage) putContent(ctx context.Context, name string, content []byte) (string, string, error) {
	sum := sha1.Sum(content)
	contentHash := hex.EncodeToString(sum[:])
	mimeType := mime.TypeByExtension(path.Ext(name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	key := blobKey(contentHash)
	exists, err := s.backend.Exists(ctx, key)
	if err != nil {
		return "", "", fmt.Errorf("failed to check file content: %w", err)
	}
	if !exists {
		if err := s.backend.Put(ctx, key, content, mimeType); err != nil {
			return "", "", fmt.Errorf("failed to store file content: %w", err)
		}
		// 事务回滚后新内容没有引用,由 ReleasePending 清理
		if s.deferred {
			s.mu.Lock()
			s.pending = append(s.pending, contentHash)
			s.mu.Unlock()
		}
	}
	return contentHash, mimeType, nil
}

// release 标记内容可能不再被引用
func (s *fileStorage) release(ctx context.Context, contentHash string) error {
	if s.deferred {
		s.mu.Lock()
		s.pending = append(s.pending, contentHash)
		s.mu.Unlock()
		return nil
	}
	return s.removeIfOrphan(ctx, s.repo, contentHash)
}

func (s *fileStorage) removeIfOrphan(ctx context.Context, repo repository.FileRepository, contentHash string) error {
	count, err := repo.CountByContentHash(ctx, contentHash)
	if err != nil {
		return fmt.Errorf("failed to count file references: %w", err)
	}
	if count > 0 {
		return nil
	}
	if err := s.backend.Delete(ctx, blobKey(contentHash)); err != nil {
		return fmt.Errorf("failed to delete file content: %w", err)
	}
	return nil
}

func (s *fileStorage) wrap(m *model.FileModel) *StoredFile {
	return &StoredFile{record: *m, storage: s}
}
