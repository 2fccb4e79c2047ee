package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docvault/internal/ai"
	"github.com/xxxsen/docvault/internal/filestore"
	"github.com/xxxsen/docvault/internal/index"
	"github.com/xxxsen/docvault/internal/repo/memrepo"
	"github.com/xxxsen/docvault/internal/service"
)

const threePages = "Lease Agreement between Acme and Bob.\n\nThe tenant shall pay rent of 500 dollars every month.\f" +
	"Termination requires ninety days written notice by either party.\f" +
	"The deposit is returned within thirty days after the lease ends."

const templateDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p><w:r><w:t>This lease is made with {{tenant_name}}</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>Monthly rent is {{rent_</w:t></w:r><w:r><w:t>amount}} dollars.</w:t></w:r></w:p>` +
	`</w:body></w:document>`

func newTestRouter(t *testing.T, loginWindow time.Duration) (*gin.Engine, *service.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	users := memrepo.NewUserRepo()
	docs := memrepo.NewDocumentRepo()
	store := filestore.NewLocal(t.TempDir())
	embedder := ai.NewEmbedder(ai.NewHashProvider(256), "hash")
	manager := ai.NewManager(nil, embedder, ai.ManagerConfig{Timeout: 5, MaxInputChars: 4000})
	indexer := index.NewIndexer(index.NewChunker(index.ChunkerConfig{ChunkSize: 300, ChunkOverlap: 60, MinChunkSize: 30}), embedder)

	auth := service.NewAuthService(users, []byte("router-secret"), time.Hour)
	documents := service.NewDocumentService(docs, store)
	ingest := service.NewIngestService(docs, memrepo.NewIngestJobRepo(), store, nil, indexer, manager, service.IngestConfig{
		MaxUploadBytes: 1 << 20,
		ExtractTimeout: 10 * time.Second,
		PageTimeout:    time.Second,
		Workers:        2,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ingest.Shutdown(ctx)
	})
	retrieval := service.NewRetrievalService(memrepo.NewChunkRepo(docs), manager, 15, 50)
	qa := service.NewQAService(retrieval, service.NewAnswerComposer(manager, 16, time.Minute), 4000)

	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), RouterDeps{
		Auth:            NewAuthHandler(auth),
		Documents:       NewDocumentHandler(documents, ingest),
		Upload:          NewUploadHandler(ingest, 1<<20, 10*time.Second),
		Ask:             NewAskHandler(qa),
		Templates:       NewTemplateHandler(service.NewTemplateService(memrepo.NewTemplateRepo(), store)),
		Users:           NewUserHandler(service.NewUserService(users)),
		Authenticator:   auth,
		LoginRateWindow: loginWindow,
	})
	created, err := auth.EnsureBootstrapAdmin(context.Background(), "admin", "admin-password")
	require.NoError(t, err)
	require.True(t, created)
	return r, auth
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doMultipart(t *testing.T, r http.Handler, path, token, filename string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func login(t *testing.T, r http.Handler, username, password string) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := decode(t, w)["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func buildTemplateDocx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []struct{ name, body string }{
		{"[Content_Types].xml", `<Types/>`},
		{"word/document.xml", templateDocument},
	} {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestRouter_DocumentLifecycle(t *testing.T) {
	r, _ := newTestRouter(t, 0)
	admin := login(t, r, "admin", "admin-password")

	w := doMultipart(t, r, "/api/v1/upload", admin, "lease.txt", []byte(threePages), map[string]string{"classification": "PUBLIC"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	uploaded := decode(t, w)
	require.Equal(t, "success", uploaded["status"])
	docID, _ := uploaded["doc_id"].(string)
	require.NotEmpty(t, docID)
	stats, _ := uploaded["extraction_stats"].(map[string]interface{})
	require.EqualValues(t, 3, stats["total_pages"])

	w = doMultipart(t, r, "/api/v1/upload", admin, "lease.txt", []byte(threePages), map[string]string{"classification": "PUBLIC"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/admin/users", admin, map[string]string{
		"username": "reader", "password": "reader-password", "role": "USER", "max_level": "PUBLIC",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reader := login(t, r, "reader", "reader-password")

	w = doJSON(t, r, http.MethodGet, "/api/v1/documents", reader, nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode(t, w)
	require.EqualValues(t, 1, listed["total"])
	docs, _ := listed["documents"].([]interface{})
	require.Len(t, docs, 1)
	doc, _ := docs[0].(map[string]interface{})
	require.EqualValues(t, 3, doc["total_pages"])
	require.NotEmpty(t, doc["owner"])
	require.NotContains(t, doc, "page_count")
	require.NotContains(t, doc, "uploader_id")

	w = doJSON(t, r, http.MethodPost, "/api/v1/page", reader, map[string]interface{}{"filename": "lease.txt", "page_number": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, decode(t, w)["content"], "ninety days")

	w = doJSON(t, r, http.MethodPut, "/api/v1/admin/documents/"+docID+"/classification", admin, map[string]string{"classification": "SECRET"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/api/v1/documents", reader, nil)
	require.EqualValues(t, 0, decode(t, w)["total"])

	w = doJSON(t, r, http.MethodPost, "/api/v1/page", reader, map[string]interface{}{"filename": "lease.txt", "page_number": 2})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/ask", reader, map[string]string{"question": "How much notice is needed for termination?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	answer := decode(t, w)
	require.Equal(t, service.InsufficientInformationAnswer, answer["answer"])
	require.Empty(t, answer["sources"])

	w = doJSON(t, r, http.MethodPost, "/api/v1/ask", admin, map[string]string{"question": "How much notice is needed for termination?"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, decode(t, w)["sources"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/document/"+docID+"/download?token="+admin, nil)
	dl := httptest.NewRecorder()
	r.ServeHTTP(dl, req)
	require.Equal(t, http.StatusOK, dl.Code)
	require.Contains(t, dl.Header().Get("Content-Disposition"), "attachment")
	require.Equal(t, threePages, dl.Body.String())
}

func TestRouter_AdminRoutesRejectUsers(t *testing.T) {
	r, _ := newTestRouter(t, 0)
	admin := login(t, r, "admin", "admin-password")
	w := doJSON(t, r, http.MethodPost, "/api/v1/admin/users", admin, map[string]string{
		"username": "staffer", "password": "staffer-password", "role": "STAFF", "max_level": "SECRET",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	staff := login(t, r, "staffer", "staffer-password")

	w = doJSON(t, r, http.MethodGet, "/api/v1/admin/users", staff, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "authorization_error", decode(t, w)["kind"])

	w = doJSON(t, r, http.MethodGet, "/api/v1/documents", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/auth/me", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode(t, w)
	require.Equal(t, false, me["is_admin"])
	require.Equal(t, false, me["can_upload"])
}

func TestRouter_TemplateGeneration(t *testing.T) {
	r, _ := newTestRouter(t, 0)
	admin := login(t, r, "admin", "admin-password")

	w := doMultipart(t, r, "/api/v1/templates", admin, "nda.docx", buildTemplateDocx(t), map[string]string{
		"name": "NDA", "doc_type": "nda", "language": "en",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tpl := decode(t, w)
	require.EqualValues(t, 2, tpl["fields_count"])
	id, _ := tpl["id"].(string)
	require.NotEmpty(t, id)

	w = doJSON(t, r, http.MethodGet, "/api/v1/templates/"+id+"/fields", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	fields, _ := decode(t, w)["fields"].([]interface{})
	require.Len(t, fields, 2)

	w = doJSON(t, r, http.MethodPost, "/api/v1/templates/"+id+"/generate", admin, map[string]interface{}{
		"values": map[string]string{"tenant_name": "A & Sons", "rent_amount": "1000"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Header().Get("Content-Disposition"), "nda_filled.docx")
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	var body string
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)
		body = string(data)
	}
	require.NotContains(t, body, "{{")
	require.Contains(t, body, "A &amp; Sons")
	require.Contains(t, body, "1000")

	w = doJSON(t, r, http.MethodDelete, "/api/v1/templates/"+id, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodGet, "/api/v1/templates/"+id+"/fields", admin, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_LoginRateLimited(t *testing.T) {
	r, _ := newTestRouter(t, time.Minute)
	login(t, r, "admin", "admin-password")
	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "admin-password"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}
