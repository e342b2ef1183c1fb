package entitlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/qr"
)

var (
	ErrTokenNotFound   = errors.New("Invalid download link")
	ErrNoProductFile   = errors.New("Product file not found")
	ErrFileMissing     = errors.New("File not found on server")
	ErrNotDownloadable = errors.New("Download link has expired or reached its limit")
)

// FileStore is where product files live.
type FileStore interface {
	Exists(path string) bool
	Open(path string) (io.ReadSeekCloser, int64, error)
}

var contentTypes = map[string]string{
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"xls":  "application/vnd.ms-excel",
	"pdf":  "application/pdf",
	"zip":  "application/zip",
	"rar":  "application/x-rar-compressed",
	"txt":  "text/plain",
	"csv":  "text/csv",
	"json": "application/json",
}

// ContentType picks the MIME type from the file extension.
func ContentType(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

type ProductSummary struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	FileName    string `json:"file_name"`
}

type OrderSummary struct {
	OrderNumber string    `json:"order_number"`
	CreatedAt   time.Time `json:"created_at"`
}

// Info is the public view of a download link.
type Info struct {
	Token              string         `json:"token"`
	Product            ProductSummary `json:"product"`
	Order              OrderSummary   `json:"order"`
	DownloadURL        string         `json:"download_url"`
	DownloadCount      int            `json:"download_count"`
	MaxDownloads       int            `json:"max_downloads"`
	RemainingDownloads int            `json:"remaining_downloads"`
	ExpiresAt          *time.Time     `json:"expires_at"`
	IsExpired          bool           `json:"is_expired"`
	CanDownload        bool           `json:"can_download"`
	LastDownloadedAt   *time.Time     `json:"last_downloaded_at"`
	CreatedAt          time.Time      `json:"created_at"`
}

// File is an open product file ready to stream. The caller closes Body.
type File struct {
	Body        io.ReadSeekCloser
	Size        int64
	Name        string
	ContentType string
}

type Service struct {
	DB      *db.DB
	Files   FileStore
	Codes   *qr.Generator
	BaseURL string
	Logger  *logger.Logger
	Now     func() time.Time
}

func NewService(store *db.DB, files FileStore, baseURL string, log *logger.Logger) *Service {
	return &Service{
		DB:      store,
		Files:   files,
		Codes:   qr.NewGenerator(),
		BaseURL: strings.TrimRight(baseURL, "/"),
		Logger:  log,
		Now:     time.Now,
	}
}

// DownloadURL is the direct link put in emails and QR codes.
func (s *Service) DownloadURL(token string) string {
	return s.BaseURL + "/api/downloads/" + token
}

func (s *Service) load(ctx context.Context, token string) (*models.ProductDownload, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}
	download, err := s.DB.GetDownloadByToken(ctx, token)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return download, nil
}

func (s *Service) describe(d *models.ProductDownload) Info {
	now := s.Now()
	info := Info{
		Token:              d.DownloadToken,
		DownloadURL:        s.DownloadURL(d.DownloadToken),
		DownloadCount:      d.DownloadCount,
		MaxDownloads:       d.MaxDownloads,
		RemainingDownloads: d.RemainingDownloads(),
		ExpiresAt:          d.ExpiresAt,
		IsExpired:          d.IsExpired(now),
		CanDownload:        d.CanDownload(now),
		LastDownloadedAt:   d.LastDownloadedAt,
		CreatedAt:          d.CreatedAt,
	}
	if d.Product != nil {
		info.Product = ProductSummary{
			ID:          d.Product.ID,
			Title:       d.Product.Title,
			Description: d.Product.Description,
			FileName:    d.Product.DownloadName(),
		}
	}
	if d.Order != nil {
		info.Order = OrderSummary{OrderNumber: d.Order.OrderNumber, CreatedAt: d.Order.CreatedAt}
	}
	return info
}

func (s *Service) Info(ctx context.Context, token string) (*Info, error) {
	download, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}
	info := s.describe(download)
	return &info, nil
}

// Redeem opens the file behind token and counts the download.
func (s *Service) Redeem(ctx context.Context, token string) (*File, error) {
	download, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}

	product := download.Product
	if product == nil || !product.HasFile() {
		s.Logger.Error("ENTITLEMENT", fmt.Sprintf("Product file not set for download %d (product %d)", download.ID, download.ProductID))
		return nil, ErrNoProductFile
	}
	if !download.CanDownload(s.Now()) {
		return nil, ErrNotDownloadable
	}
	if !s.Files.Exists(product.FilePath) {
		s.Logger.Error("ENTITLEMENT", fmt.Sprintf("File %s missing on storage for download %d", product.FilePath, download.ID))
		return nil, ErrFileMissing
	}

	body, size, err := s.Files.Open(product.FilePath)
	if err != nil {
		s.Logger.Error("ENTITLEMENT", fmt.Sprintf("Failed to open %s: %v", product.FilePath, err))
		return nil, ErrFileMissing
	}

	now := s.Now().UTC()
	if err := s.DB.RecordDownload(ctx, download.ID, now); err != nil {
		body.Close()
		return nil, fmt.Errorf("record download %d: %w", download.ID, err)
	}

	s.Logger.Info("ENTITLEMENT", fmt.Sprintf("Download %d served: product %d, order %d, count %d",
		download.ID, product.ID, download.OrderID, download.DownloadCount+1))

	name := product.DownloadName()
	return &File{
		Body:        body,
		Size:        size,
		Name:        name,
		ContentType: ContentType(name),
	}, nil
}

// ListForCustomer describes every download a signed-in customer owns.
func (s *Service) ListForCustomer(ctx context.Context, customerID int64) ([]Info, error) {
	downloads, err := s.DB.ListDownloadsForCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(downloads))
	for _, d := range downloads {
		out = append(out, s.describe(d))
	}
	return out, nil
}

// QR renders the direct download link as a PNG.
func (s *Service) QR(ctx context.Context, token string) ([]byte, error) {
	download, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.Codes.PNG(s.DownloadURL(download.DownloadToken))
}
