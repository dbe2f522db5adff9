package metrics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// recordCounter 一个记录数量指标及其查询
type recordCounter struct {
	label string
	query func(db *gorm.DB) *gorm.DB
}

var recordCounters = []recordCounter{
	{"certificate_templates", func(db *gorm.DB) *gorm.DB { return db.Table("certificate_templates") }},
	{"certificate_issues", func(db *gorm.DB) *gorm.DB { return db.Table("certificate_issues") }},
	{"certificate_issues_emailed", func(db *gorm.DB) *gorm.DB {
		return db.Table("certificate_issues").Where("emailed = ?", true)
	}},
	{"files", func(db *gorm.DB) *gorm.DB { return db.Table("files") }},
}

// Collector 定期把连接池和证书数量写入指标
type Collector struct {
	db       *gorm.DB
	interval time.Duration
	logger   logrus.FieldLogger

	stop chan struct{}
	done chan struct{}
}

// NewCollector 创建指标收集器,logger 为 nil 时不记录查询失败
func NewCollector(db *gorm.DB, interval time.Duration, logger logrus.FieldLogger) *Collector {
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	return &Collector{
		db:       db,
		interval: interval,
		logger:   logger.WithField("component", "metrics_collector"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 立即收集一次,之后按间隔收集
func (c *Collector) Start() {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			c.CollectOnce(context.Background())
			select {
			case <-c.stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop 停止收集并等待退出
func (c *Collector) Stop() {
	close(c.stop)
	<-c.done
}

// CollectOnce 收集一次
func (c *Collector) CollectOnce(ctx context.Context) {
	if err := UpdateDatabaseConnections(c.db); err != nil {
		c.logger.WithError(err).Debug("failed to read connection pool stats")
	}

	db := c.db.WithContext(ctx)
	for _, rc := range recordCounters {
		var count int64
		if err := rc.query(db).Count(&count).Error; err != nil {
			c.logger.WithError(err).WithField("record", rc.label).Debug("failed to count records")
			continue
		}
		UpdateRecordCount(rc.label, float64(count))
	}
}
