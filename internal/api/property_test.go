package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestAPIProperties(t *testing.T) {
	_, handler := setupTestRouter(t, 0)
	properties := gopter.NewProperties(nil)

	// PUT then GET returns the same value for every byte-oriented kind
	properties.Property("HTTP PUT then GET returns same value", prop.ForAll(
		func(id string, value string, kind string) bool {
			key := "slot-" + id
			putBody, _ := json.Marshal(PutRequest{Value: value})
			putReq := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/v1/%s/%s", kind, key), bytes.NewReader(putBody))
			putReq.Header.Set("Content-Type", "application/json")
			putRR := httptest.NewRecorder()
			handler.ServeHTTP(putRR, putReq)
			if putRR.Code != http.StatusOK {
				return false
			}

			getReq := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/%s/%s", kind, key), nil)
			getRR := httptest.NewRecorder()
			handler.ServeHTTP(getRR, getReq)
			if getRR.Code != http.StatusOK {
				return false
			}

			var resp GetResponse
			if err := json.Unmarshal(getRR.Body.Bytes(), &resp); err != nil {
				return false
			}
			return resp.Found && resp.Value == value && resp.Encoding == ""
		},
		gen.Identifier(),
		gen.AlphaString(),
		gen.OneConstOf("keyvalue", "binaryfile", "database"),
	))

	// DELETE makes a key disappear
	properties.Property("HTTP DELETE then HEAD returns 404", prop.ForAll(
		func(key string) bool {
			putBody, _ := json.Marshal(PutRequest{Value: "v"})
			putReq := httptest.NewRequest(http.MethodPut, "/api/v1/keyvalue/"+key, bytes.NewReader(putBody))
			handler.ServeHTTP(httptest.NewRecorder(), putReq)

			delRR := httptest.NewRecorder()
			handler.ServeHTTP(delRR, httptest.NewRequest(http.MethodDelete, "/api/v1/keyvalue/"+key, nil))
			if delRR.Code != http.StatusOK {
				return false
			}

			headRR := httptest.NewRecorder()
			handler.ServeHTTP(headRR, httptest.NewRequest(http.MethodHead, "/api/v1/keyvalue/"+key, nil))
			return headRR.Code == http.StatusNotFound
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
