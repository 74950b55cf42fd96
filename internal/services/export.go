package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/cache"
	"github.com/aristath/twstock/internal/config"
)

// ExportService uploads a nightly CSV snapshot of the last-trading-day
// quotes to S3-compatible storage. An empty bucket disables the job.
type ExportService struct {
	cfg       config.Export
	reference *cache.Reference
	uploader  *manager.Uploader
	log       zerolog.Logger

	now func() time.Time
}

// NewExportService builds the S3 uploader. Returns a disabled service when
// no bucket is configured.
func NewExportService(ctx context.Context, cfg config.Export, ref *cache.Reference, log zerolog.Logger) (*ExportService, error) {
	s := &ExportService{
		cfg:       cfg,
		reference: ref,
		log:       log.With().Str("service", "export").Logger(),
		now:       time.Now,
	}
	if cfg.Bucket == "" {
		s.log.Info().Msg("export bucket not configured, export disabled")
		return s, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	s.uploader = manager.NewUploader(client)
	return s, nil
}

// Run writes the snapshot for today.
func (s *ExportService) Run(ctx context.Context) error {
	if s.uploader == nil {
		return nil
	}
	date := s.now().UTC().Format("2006-01-02")

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"stock_symbol", "date", "opening_price", "highest_price",
		"lowest_price", "closing_price", "trading_volume", "change_value",
		"price_to_book_ratio"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for symbol, q := range s.reference.LastDailyQuotes() {
		record := []string{
			symbol,
			q.Date.Format("2006-01-02"),
			formatFloat(q.OpeningPrice),
			formatFloat(q.HighestPrice),
			formatFloat(q.LowestPrice),
			formatFloat(q.ClosingPrice),
			formatFloat(q.TradingVolume),
			formatFloat(q.ChangeValue),
			formatFloat(q.PriceToBookRatio),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	key := s.cfg.Prefix + "last_daily_quotes/" + date + ".csv"
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload export: %w", err)
	}
	s.log.Info().Str("key", key).Int("bytes", buf.Len()).Msg("snapshot exported")
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
