// Package s3 提供基于 S3 兼容对象存储的 Saga 归档.
//
// 兼容 MinIO、阿里云 OSS、腾讯云 COS 等 S3 兼容存储.
//
// 对象布局:
//
//	{prefix}/records/{id}.json        记录快照
//	{prefix}/status/{status}/{id}     状态索引，空对象
//
// 示例:
//
//	client, _ := s3.NewClient(&s3.Config{
//	    Endpoint:     "http://localhost:9000",
//	    AccessKey:    "minioadmin",
//	    SecretKey:    "minioadmin",
//	    Bucket:       "questline",
//	    UsePathStyle: true,
//	}, log)
//	archive, _ := s3.NewArchive(client, "questline", "sagas")
package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// API 归档用到的 S3 操作，*s3.Client 实现了该接口.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ API = (*s3.Client)(nil)
