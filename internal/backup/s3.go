package backup

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"strings"
)

const defaultS3Region = "us-east-1"

// S3Config describes the bucket snapshots are copied to.
type S3Config struct {
	BucketURL string // s3://bucket[/prefix]
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Uploader copies snapshots with `aws s3 cp`.
type S3Uploader struct {
	bucket string
	prefix string
	cfg    S3Config
	run    func(ctx context.Context, env []string, args ...string) ([]byte, error)
}

// NewS3Uploader checks credentials and the aws binary up front so a bad
// setup fails at startup instead of on the first snapshot.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	bucket, prefix, err := parseBucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("s3: access key and secret key are required")
	}
	if _, err := exec.LookPath("aws"); err != nil {
		return nil, fmt.Errorf("s3: aws cli not found in PATH")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = defaultS3Region
	}
	return &S3Uploader{bucket: bucket, prefix: prefix, cfg: cfg, run: runAWS}, nil
}

// UploadFile copies localPath to the bucket under the configured prefix.
func (u *S3Uploader) UploadFile(ctx context.Context, localPath string) error {
	out, err := u.run(ctx, u.env(), u.args(localPath)...)
	if err != nil {
		return fmt.Errorf("s3 cp: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (u *S3Uploader) args(localPath string) []string {
	key := path.Join(u.prefix, path.Base(localPath))
	args := []string{"s3", "cp", localPath, "s3://" + u.bucket + "/" + key,
		"--region", u.cfg.Region, "--only-show-errors"}
	if ep := endpointURL(u.cfg.Endpoint, u.cfg.UseSSL); ep != "" {
		args = append(args, "--endpoint-url", ep)
	}
	return args
}

func (u *S3Uploader) env() []string {
	return append(os.Environ(),
		"AWS_ACCESS_KEY_ID="+u.cfg.AccessKey,
		"AWS_SECRET_ACCESS_KEY="+u.cfg.SecretKey,
		"AWS_DEFAULT_REGION="+u.cfg.Region,
	)
}

func runAWS(ctx context.Context, env []string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "aws", args...)
	cmd.Env = env
	return cmd.CombinedOutput()
}

func endpointURL(endpoint string, useSSL bool) string {
	endpoint = strings.TrimSpace(endpoint)
	switch {
	case endpoint == "":
		return ""
	case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
		return endpoint
	case useSSL:
		return "https://" + endpoint
	default:
		return "http://" + endpoint
	}
}

func parseBucketURL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("s3: parse bucket-url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("s3: bucket-url must use s3:// scheme")
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("s3: bucket-url missing bucket name")
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}
