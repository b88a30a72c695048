// Package s3store is a NodeStore/ValueStore backed by AWS S3 and DynamoDB:
// nodes (fixed 65-byte blobs, content-addressed) live in S3 keyed by hex
// digest, the same way immutable log tiles are stored in S3 elsewhere in
// this family of tools; the value-store index, which needs point lookups
// rather than bulk objects, lives in DynamoDB keyed by key hash.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/smtree/smt"
)

var (
	opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smt_s3store_ops_total",
		Help: "Count of s3store operations by backend and verb.",
	}, []string{"backend", "op"})
	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "smt_s3store_op_duration_seconds",
		Help: "Latency of s3store operations by backend and verb.",
	}, []string{"backend", "op"})
)

func init() {
	prometheus.MustRegister(opsTotal, opDuration)
}

func observe(backend, op string) func() {
	timer := prometheus.NewTimer(opDuration.WithLabelValues(backend, op))
	return func() {
		opsTotal.WithLabelValues(backend, op).Inc()
		timer.ObserveDuration()
	}
}

// NodeStore persists encoded nodes as S3 objects keyed by their hex digest.
type NodeStore struct {
	client *s3.Client
	bucket string
}

var _ smt.NodeStore = (*NodeStore)(nil)

// NewNodeStore returns a NodeStore writing objects to bucket.
func NewNodeStore(client *s3.Client, bucket string) *NodeStore {
	return &NodeStore{client: client, bucket: bucket}
}

func (s *NodeStore) GetNode(ctx context.Context, addr smt.Digest) ([smt.EncodedSize]byte, error) {
	defer observe("s3", "get")()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(addr.String()),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return [smt.EncodedSize]byte{}, smt.ErrNodeNotFound
		}
		return [smt.EncodedSize]byte{}, fmt.Errorf("s3store: get node %s: %w", addr, err)
	}
	defer out.Body.Close()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return [smt.EncodedSize]byte{}, fmt.Errorf("s3store: reading node %s: %w", addr, err)
	}
	var result [smt.EncodedSize]byte
	if len(raw) != smt.EncodedSize {
		return result, fmt.Errorf("%w: stored node is %d bytes, want %d", smt.ErrMalformedNode, len(raw), smt.EncodedSize)
	}
	copy(result[:], raw)
	return result, nil
}

func (s *NodeStore) PutNode(ctx context.Context, addr smt.Digest, raw [smt.EncodedSize]byte) error {
	defer observe("s3", "put")()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(addr.String()),
		Body:   bytes.NewReader(raw[:]),
	})
	if err != nil {
		return fmt.Errorf("s3store: put node %s: %w", addr, err)
	}
	return nil
}

func (s *NodeStore) DeleteNode(ctx context.Context, addr smt.Digest) error {
	defer observe("s3", "delete")()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(addr.String()),
	})
	if err != nil {
		return fmt.Errorf("s3store: delete node %s: %w", addr, err)
	}
	return nil
}

// isNoSuchKey reports whether err is S3's NoSuchKey or a 404 response,
// tolerating both the typed and the generic smithy-http error shapes.
func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode() == 404
	}
	return false
}

// ValueStore persists raw values in a DynamoDB table keyed by key hash, for
// the point lookups Tree.Get needs.
type ValueStore struct {
	client *dynamodb.Client
	table  string
}

var _ smt.ValueStore = (*ValueStore)(nil)

const (
	attrKeyHash = "key_hash"
	attrValue   = "value"
)

// NewValueStore returns a ValueStore backed by the given DynamoDB table,
// which must have attrKeyHash ("key_hash") as its partition key.
func NewValueStore(client *dynamodb.Client, table string) *ValueStore {
	return &ValueStore{client: client, table: table}
}

func (v *ValueStore) GetValue(ctx context.Context, keyHash smt.Digest) ([]byte, error) {
	defer observe("dynamodb", "get")()
	out, err := v.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(v.table),
		Key: map[string]types.AttributeValue{
			attrKeyHash: &types.AttributeValueMemberS{Value: keyHash.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: get value %s: %w", keyHash, err)
	}
	if out.Item == nil {
		return nil, smt.ErrValueNotFound
	}
	attr, ok := out.Item[attrValue].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("%w: value item %s missing binary attribute", smt.ErrMalformedNode, keyHash)
	}
	return attr.Value, nil
}

func (v *ValueStore) PutValue(ctx context.Context, keyHash smt.Digest, value []byte) error {
	defer observe("dynamodb", "put")()
	_, err := v.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(v.table),
		Item: map[string]types.AttributeValue{
			attrKeyHash: &types.AttributeValueMemberS{Value: keyHash.String()},
			attrValue:   &types.AttributeValueMemberB{Value: value},
		},
	})
	if err != nil {
		return fmt.Errorf("s3store: put value %s: %w", keyHash, err)
	}
	return nil
}

func (v *ValueStore) DeleteValue(ctx context.Context, keyHash smt.Digest) error {
	defer observe("dynamodb", "delete")()
	_, err := v.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(v.table),
		Key: map[string]types.AttributeValue{
			attrKeyHash: &types.AttributeValueMemberS{Value: keyHash.String()},
		},
	})
	if err != nil {
		return fmt.Errorf("s3store: delete value %s: %w", keyHash, err)
	}
	return nil
}

// backendTimeout is the deadline WithDefaultTimeout gives a context that
// carries none of its own. The store methods do not apply it themselves;
// they use the caller's context as given.
const backendTimeout = 30 * time.Second

// WithDefaultTimeout returns a context with backendTimeout applied if ctx
// has no deadline yet, and the cancel func to release it.
func WithDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, backendTimeout)
}
