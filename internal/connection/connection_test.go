package connection

import (
	"errors"
	"testing"
	"time"
)

func TestValidateExtractionToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	token := "tok_abc123"
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name    string
		conn    Connection
		token   string
		wantErr error
	}{
		{
			name: "valid token",
			conn: Connection{
				ExtractionEnabled:      true,
				ExtractionToken:        &token,
				ExtractionTokenExpires: &future,
			},
			token: token,
		},
		{
			name: "extraction disabled",
			conn: Connection{
				ExtractionEnabled:      false,
				ExtractionToken:        &token,
				ExtractionTokenExpires: &future,
			},
			token:   token,
			wantErr: ErrExtractionDisabled,
		},
		{
			name: "no token stored",
			conn: Connection{
				ExtractionEnabled: true,
			},
			token:   token,
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong token",
			conn: Connection{
				ExtractionEnabled:      true,
				ExtractionToken:        &token,
				ExtractionTokenExpires: &future,
			},
			token:   "tok_wrong",
			wantErr: ErrInvalidToken,
		},
		{
			name: "expired token",
			conn: Connection{
				ExtractionEnabled:      true,
				ExtractionToken:        &token,
				ExtractionTokenExpires: &past,
			},
			token:   token,
			wantErr: ErrTokenExpired,
		},
		{
			name: "no expiry means token never expires",
			conn: Connection{
				ExtractionEnabled: true,
				ExtractionToken:   &token,
			},
			token: token,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conn.ValidateExtractionToken(tt.token, now)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateExtractionToken() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateExtractionToken() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
