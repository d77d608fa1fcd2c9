package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
)

// Guest is where a pet's QR code was scanned from.
type Guest struct {
	IP        string `json:"ip"`
	City      string `json:"city"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

type scanRequest struct {
	UserID string `json:"user_id"`
	Guest  Guest  `json:"guest"`
}

type qrResponse struct {
	QR string `json:"qr"`
}

// GenerateQR returns the PNG image of the caller's pet QR code. The backend
// sends it base64 encoded.
func (c *Client) GenerateQR(ctx context.Context, token string) ([]byte, error) {
	var resp qrResponse
	if err := c.do(ctx, http.MethodGet, "/qr/generator", token, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("generate qr: %w", err)
	}
	png, err := base64.StdEncoding.DecodeString(resp.QR)
	if err != nil {
		return nil, fmt.Errorf("decode qr image: %w", err)
	}
	return png, nil
}

// ReportScan tells the backend that userID's QR code was scanned by guest. The
// owner receives a notification_scan push event.
func (c *Client) ReportScan(ctx context.Context, userID string, guest Guest) error {
	if err := c.do(ctx, http.MethodPost, "/qr/scan", "", nil, scanRequest{UserID: userID, Guest: guest}, nil); err != nil {
		return fmt.Errorf("report scan: %w", err)
	}
	return nil
}
