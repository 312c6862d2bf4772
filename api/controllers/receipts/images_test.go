package receipts

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/snapspend-backend/internal/receiptimages"
)

func TestPresignImage(t *testing.T) {
	images := &stubImages{}
	userID := uuid.New()
	body, err := json.Marshal(map[string]any{"mime_type": "image/jpeg", "file_name": "front.jpg", "size_bytes": 1200})
	require.NoError(t, err)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/receipts/images/presign", bytes.NewReader(body)), userID)
	resp := httptest.NewRecorder()
	PresignImage(images, testLogger()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "front.jpg", images.presigned.FileName)

	var envelope struct {
		Data receiptimages.PresignOutput `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.True(t, receiptimages.IsStoredKey(envelope.Data.Key))
	assert.Equal(t, "https://storage.test/upload", envelope.Data.UploadURL)
}

func TestPresignImageValidatesBody(t *testing.T) {
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/receipts/images/presign", bytes.NewReader([]byte(`{"file_name":"a.jpg"}`))), uuid.New())
	resp := httptest.NewRecorder()
	PresignImage(&stubImages{}, testLogger()).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestImageURL(t *testing.T) {
	userID := uuid.New()
	key := receiptimages.BuildKey(userID, uuid.New(), "front.jpg")

	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/receipts/images/url?key="+url.QueryEscape(key), nil), userID)
	resp := httptest.NewRecorder()
	ImageURL(&stubImages{}, testLogger()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "https://storage.test/"+key, envelope.Data["url"])
}

func TestImageURLForeignKeyForbidden(t *testing.T) {
	key := receiptimages.BuildKey(uuid.New(), uuid.New(), "front.jpg")
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/receipts/images/url?key="+url.QueryEscape(key), nil), uuid.New())
	resp := httptest.NewRecorder()
	ImageURL(&stubImages{}, testLogger()).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}
