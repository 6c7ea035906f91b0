package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Tsukikage7/questline/saga"
)

const contentTypeJSON = "application/json"

var allStatuses = []saga.Status{
	saga.StatusStarted,
	saga.StatusProcessing,
	saga.StatusCompleted,
	saga.StatusFailed,
	saga.StatusCompensating,
	saga.StatusCompensated,
}

// Archive S3 审计归档.
type Archive struct {
	api    API
	bucket string
	prefix string
}

var _ saga.Store = (*Archive)(nil)

// NewArchive 创建 S3 审计归档.
func NewArchive(api API, bucket, prefix string) (*Archive, error) {
	if api == nil {
		return nil, ErrNilAPI
	}
	if bucket == "" {
		return nil, ErrEmptyBucket
	}
	return &Archive{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (a *Archive) key(parts ...string) string {
	if a.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{a.prefix}, parts...)...)
}

func (a *Archive) recordKey(id string) string {
	return a.key("records", id+".json")
}

func (a *Archive) statusKey(status saga.Status, id string) string {
	return a.key("status", string(status), id)
}

// Save 写入记录快照并把状态索引移动到当前状态.
func (a *Archive) Save(ctx context.Context, rec *saga.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if _, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.recordKey(rec.ID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentTypeJSON),
		Metadata:    map[string]string{"status": string(rec.Status)},
	}); err != nil {
		return err
	}

	var stale []types.ObjectIdentifier
	for _, st := range allStatuses {
		if st != rec.Status {
			stale = append(stale, types.ObjectIdentifier{Key: aws.String(a.statusKey(st, rec.ID))})
		}
	}
	if err := a.deleteKeys(ctx, stale); err != nil {
		return err
	}

	_, err = a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.statusKey(rec.Status, rec.ID)),
		Body:   bytes.NewReader(nil),
	})
	return err
}

// Get 读取记录快照.
func (a *Archive) Get(ctx context.Context, id string) (*saga.Record, error) {
	out, err := a.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.recordKey(id)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, saga.ErrSagaNotFound
		}
		return nil, err
	}
	defer out.Body.Close()

	var rec saga.Record
	if err := json.NewDecoder(out.Body).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete 删除记录快照和全部状态索引.
func (a *Archive) Delete(ctx context.Context, id string) error {
	keys := []types.ObjectIdentifier{{Key: aws.String(a.recordKey(id))}}
	for _, st := range allStatuses {
		keys = append(keys, types.ObjectIdentifier{Key: aws.String(a.statusKey(st, id))})
	}
	return a.deleteKeys(ctx, keys)
}

// List 按开始时间倒序列出指定状态的记录.
//
// 索引指向的快照已不存在时跳过该条目.
func (a *Archive) List(ctx context.Context, status saga.Status, limit int) ([]*saga.Record, error) {
	prefix := a.statusKey(status, "") + "/"
	paginator := s3.NewListObjectsV2Paginator(a.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})

	var records []*saga.Record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			id := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			rec, err := a.Get(ctx, id)
			if errors.Is(err, saga.ErrSagaNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (a *Archive) deleteKeys(ctx context.Context, keys []types.ObjectIdentifier) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := a.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(a.bucket),
		Delete: &types.Delete{Objects: keys, Quiet: aws.Bool(true)},
	})
	return err
}
