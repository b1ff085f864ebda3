package waterdata

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/riverchem/saltflux/internal/models"
)

// SiteMirror retrieves a bulk site-inventory file from an agency FTP
// mirror. The file is tab-delimited RDB: comment lines prefixed with '#',
// a column-header line, a column-format line, then one row per site.
type SiteMirror struct {
	host string
	path string
}

func NewSiteMirror(host, path string) *SiteMirror {
	return &SiteMirror{host: host, path: path}
}

// FetchSiteInventory downloads and parses the inventory file as raw
// records keyed by the RDB column names.
func (m *SiteMirror) FetchSiteInventory() ([]models.RawRecord, error) {
	conn, err := ftp.Dial(m.host, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(m.path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	return ParseRDB(resp)
}

// ParseRDB decodes a tab-delimited RDB stream. Rows shorter than the
// header are padded with empty cells; extra cells are dropped.
func ParseRDB(r io.Reader) ([]models.RawRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var header []string
	sawFormatLine := false
	var records []models.RawRecord

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		cells := strings.Split(line, "\t")
		if header == nil {
			header = cells
			continue
		}
		if !sawFormatLine {
			// The line after the header declares column widths (5s, 15d...).
			sawFormatLine = true
			continue
		}
		record := make(models.RawRecord, len(header))
		for i, col := range header {
			if i < len(cells) {
				record[col] = cells[i]
			} else {
				record[col] = ""
			}
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rdb: %w", err)
	}
	if header == nil {
		return nil, fmt.Errorf("rdb: no header line")
	}
	return records, nil
}
