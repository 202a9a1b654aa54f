package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/vmishra/bookflix/internal/extract"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/types"
)

const (
	googleBooksAPI    = "https://www.googleapis.com/books/v1/volumes"
	googleBooksSource = "google_books"
)

type googleVolume struct {
	ID         string          `json:"id"`
	VolumeInfo json.RawMessage `json:"volumeInfo"`
}

type googleVolumeInfo struct {
	Description         string `json:"description"`
	Publisher           string `json:"publisher"`
	PublishedDate       string `json:"publishedDate"`
	PageCount           int    `json:"pageCount"`
	AverageRating       float64 `json:"averageRating"`
	IndustryIdentifiers []struct {
		Type       string `json:"type"`
		Identifier string `json:"identifier"`
	} `json:"industryIdentifiers"`
	ImageLinks struct {
		Thumbnail      string `json:"thumbnail"`
		SmallThumbnail string `json:"smallThumbnail"`
	} `json:"imageLinks"`
}

// runEnrich fills empty metadata columns from the Google Books API.
// Values already on the book row always win. A lookup with no match
// completes the job; only transport and decode failures fail it.
func (p *Pipeline) runEnrich(ctx context.Context, job *types.ProcessingJob, book *types.Book) error {
	query := book.Title
	if book.Author != "" {
		query += "+inauthor:" + book.Author
	}

	body, err := p.fetchJSON(ctx, p.booksAPI+"?q="+url.QueryEscape(query)+"&maxResults=1")
	if err != nil {
		return fmt.Errorf("google books lookup: %w", err)
	}

	var payload struct {
		Items []googleVolume `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode google books response: %w", err)
	}
	if len(payload.Items) == 0 {
		return p.store.MarkJob(ctx, job.ID, types.JobCompleted, "")
	}

	volume := payload.Items[0]
	if err := p.store.UpsertExternalMetadata(ctx, book.ID, googleBooksSource, volume.VolumeInfo); err != nil {
		return fmt.Errorf("store raw metadata: %w", err)
	}

	var info googleVolumeInfo
	if err := json.Unmarshal(volume.VolumeInfo, &info); err != nil {
		return fmt.Errorf("decode volume info: %w", err)
	}

	fill := store.MetadataFill{
		Description:   info.Description,
		Publisher:     info.Publisher,
		PublishedDate: info.PublishedDate,
		PageCount:     info.PageCount,
		Rating:        info.AverageRating,
	}
	for _, ident := range info.IndustryIdentifiers {
		if ident.Type == "ISBN_13" {
			fill.ISBN = ident.Identifier
			break
		}
	}

	if book.CoverPath == "" {
		coverURL := info.ImageLinks.Thumbnail
		if coverURL == "" {
			coverURL = info.ImageLinks.SmallThumbnail
		}
		if coverURL != "" {
			if coverPath, cErr := p.fetchCover(ctx, book.ID, coverURL); cErr != nil {
				p.logger.Warn("cover fetch failed", "book_id", book.ID, "error", cErr)
			} else {
				fill.CoverPath = coverPath
			}
		}
	}

	if err := p.store.FillBookMetadata(ctx, book.ID, fill); err != nil {
		return fmt.Errorf("fill metadata: %w", err)
	}
	return p.store.MarkJob(ctx, job.ID, types.JobCompleted, "")
}

// fetchJSON gets a URL with bounded retries on transient failures.
func (p *Pipeline) fetchJSON(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := p.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				err := fmt.Errorf("unexpected status %d", resp.StatusCode)
				if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return retry.Unrecoverable(err)
				}
				return err
			}
			body, err = io.ReadAll(resp.Body)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	return body, err
}

// fetchCover downloads and stores a cover image, returning its saved path.
func (p *Pipeline) fetchCover(ctx context.Context, bookID int64, coverURL string) (string, error) {
	data, err := p.fetchJSON(ctx, coverURL)
	if err != nil {
		return "", err
	}
	resized, err := extract.ResizeCover(data)
	if err != nil {
		return "", fmt.Errorf("resize: %w", err)
	}
	return extract.SaveCover(p.coversPath, bookID, resized)
}
