package publish

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"
)

// deleteBatchSize is the S3 limit on keys per DeleteObjects call.
const deleteBatchSize = 1000

// Client is the subset of the S3 API the publisher calls. *s3.Client
// satisfies it.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Options configures a publish run.
type Options struct {
	// Prune deletes remote objects under the prefix that no local file
	// maps to.
	Prune bool

	// Concurrency caps parallel uploads. Zero means 8.
	Concurrency int

	// OnUpload is called after each successful upload. Calls may come
	// from multiple goroutines.
	OnUpload func(key string, size int64)
}

// Summary reports what a publish run did.
type Summary struct {
	// Uploaded counts objects written.
	Uploaded int

	// Pruned counts stale objects deleted.
	Pruned int

	// Bytes is the total upload volume.
	Bytes int64

	// Duration is how long the run took.
	Duration time.Duration
}

// Publisher copies a build output directory to an S3 bucket.
type Publisher struct {
	client  Client
	bucket  string
	prefix  string
	options Options
}

// New creates a publisher. The prefix may be empty; otherwise it is the
// key directory all uploads land under.
func New(client Client, bucket, prefix string, options Options) *Publisher {
	if options.Concurrency <= 0 {
		options.Concurrency = 8
	}
	return &Publisher{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		options: options,
	}
}

// Publish uploads every file under dir and, when pruning is on, deletes
// remote objects under the prefix that the local tree no longer contains.
// Uploads run concurrently; the first failure aborts the run.
func (p *Publisher) Publish(ctx context.Context, dir string) (*Summary, error) {
	start := time.Now()

	files, err := localFiles(dir)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	keys := make(map[string]bool, len(files))
	for _, rel := range files {
		keys[p.key(rel)] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.options.Concurrency)
	sizes := make([]int64, len(files))
	for i, rel := range files {
		g.Go(func() error {
			n, err := p.upload(gctx, dir, rel)
			if err != nil {
				return err
			}
			sizes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	summary.Uploaded = len(files)
	for _, n := range sizes {
		summary.Bytes += n
	}

	if p.options.Prune {
		pruned, err := p.prune(ctx, keys)
		if err != nil {
			return nil, err
		}
		summary.Pruned = pruned
	}

	summary.Duration = time.Since(start)
	return summary, nil
}

// localFiles walks the output tree and returns slash-form paths relative
// to its root, sorted.
func localFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func (p *Publisher) upload(ctx context.Context, dir, rel string) (int64, error) {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	key := p.key(rel)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.bucket),
		Key:          aws.String(key),
		Body:         f,
		ContentType:  aws.String(contentTypeFor(rel)),
		CacheControl: aws.String(cacheControlFor(rel)),
	})
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", key, err)
	}

	if p.options.OnUpload != nil {
		p.options.OnUpload(key, info.Size())
	}
	return info.Size(), nil
}

// prune lists everything under the prefix and deletes keys the local tree
// does not produce.
func (p *Publisher) prune(ctx context.Context, keep map[string]bool) (int, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(p.bucket)}
	if p.prefix != "" {
		input.Prefix = aws.String(p.prefix + "/")
	}

	var stale []types.ObjectIdentifier
	paginator := s3.NewListObjectsV2Paginator(p.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("list bucket %s: %w", p.bucket, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || keep[*obj.Key] {
				continue
			}
			stale = append(stale, types.ObjectIdentifier{Key: obj.Key})
		}
	}

	for i := 0; i < len(stale); i += deleteBatchSize {
		batch := stale[i:min(i+deleteBatchSize, len(stale))]
		_, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(p.bucket),
			Delete: &types.Delete{
				Objects: batch,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return 0, fmt.Errorf("prune %d objects: %w", len(batch), err)
		}
	}
	return len(stale), nil
}

func (p *Publisher) key(rel string) string {
	if p.prefix == "" {
		return rel
	}
	return path.Join(p.prefix, rel)
}

// contentTypes covers the types a build output actually contains. Anything
// else falls back to the platform table, then to octet-stream.
var contentTypes = map[string]string{
	".js":    "text/javascript; charset=utf-8",
	".mjs":   "text/javascript; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".html":  "text/html; charset=utf-8",
	".json":  "application/json",
	".map":   "application/json",
	".svg":   "image/svg+xml",
	".wasm":  "application/wasm",
	".ico":   "image/x-icon",
	".txt":   "text/plain; charset=utf-8",
	".woff2": "font/woff2",
}

func contentTypeFor(rel string) string {
	ext := strings.ToLower(path.Ext(rel))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// cacheControlFor keys off the output layout: chunk and asset names embed
// a content hash, so they can be cached forever; entry modules and
// manifests keep their names across builds and must revalidate.
func cacheControlFor(rel string) string {
	for _, part := range strings.Split(path.Dir(rel), "/") {
		if part == "assets" || part == "chunks" {
			return "public, max-age=31536000, immutable"
		}
	}
	return "public, max-age=0, must-revalidate"
}
