package scan

import (
	"errors"
	"fmt"
	"io"

	"github.com/dutchcoders/go-clamd"
)

// ErrInfected 表示文件被 ClamAV 判定为恶意。
var ErrInfected = errors.New("malicious file detected")

// ClamdScanner 通过 clamd 的 INSTREAM 扫描上传内容。
type ClamdScanner struct {
	client *clamd.Clamd
}

// NewClamdScanner 地址为空时返回 nil，调用方据此跳过扫描。
func NewClamdScanner(addr string) *ClamdScanner {
	if addr == "" {
		return nil
	}
	return &ClamdScanner{client: clamd.NewClamd(addr)}
}

// Scan 扫描 r 的内容，发现病毒时返回 ErrInfected。
func (s *ClamdScanner) Scan(r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}

	return drainResults(results)
}

// drainResults 汇总扫描结果。必须读完 results，否则 go-clamd 的发送协程会一直阻塞。
func drainResults(results <-chan *clamd.ScanResult) error {
	var (
		infected bool
		scanErr  error
	)
	for result := range results {
		switch result.Status {
		case clamd.RES_OK:
		case clamd.RES_FOUND:
			infected = true
		default:
			if scanErr == nil {
				scanErr = fmt.Errorf("clamd returned %s: %s", result.Status, result.Description)
			}
		}
	}
	if scanErr != nil {
		return scanErr
	}
	if infected {
		return ErrInfected
	}
	return nil
}
