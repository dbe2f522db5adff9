package storage

import (
	"context"
	"time"

	"github.com/mautops/certificate-gin/internal/model"
)

// StoredFile 已保存的文件
type StoredFile struct {
	record  model.FileModel
	storage FileStorage
}

// ID 文件记录 ID
func (f *StoredFile) ID() int64 { return f.record.ID }

// ItemID 文件所属条目 ID
func (f *StoredFile) ItemID() int64 { return f.record.ItemID }

// ContextID 文件所属上下文
func (f *StoredFile) ContextID() int64 { return f.record.ContextID }

// Component 文件所属组件
func (f *StoredFile) Component() string { return f.record.Component }

// Area 文件区域
func (f *StoredFile) Area() string { return f.record.FileArea }

// Path 文件路径
func (f *StoredFile) Path() string { return f.record.FilePath }

// Name 文件名
func (f *StoredFile) Name() string { return f.record.FileName }

// Size 文件大小(字节)
func (f *StoredFile) Size() int64 { return f.record.FileSize }

// MimeType 文件 MIME 类型
func (f *StoredFile) MimeType() string { return f.record.MimeType }

// ContentHash 内容哈希
func (f *StoredFile) ContentHash() string { return f.record.ContentHash }

// UpdatedAt 最后修改时间
func (f *StoredFile) UpdatedAt() time.Time { return f.record.UpdatedAt }

// Content 读取文件内容
func (f *StoredFile) Content(ctx context.Context) ([]byte, error) {
	return f.storage.Content(ctx, f)
}

// Delete 删除文件
func (f *StoredFile) Delete(ctx context.Context) error {
	return f.storage.DeleteFile(ctx, f.ID())
}
