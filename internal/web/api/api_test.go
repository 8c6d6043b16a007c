package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gowvp/roadeye/internal/conf"
	"github.com/gowvp/roadeye/internal/core/accident"
	"github.com/gowvp/roadeye/internal/core/accident/store/accidentdb"
	"github.com/gowvp/roadeye/internal/core/analysis"
	"github.com/gowvp/roadeye/internal/core/notify"
	"github.com/gowvp/roadeye/internal/core/user"
	"github.com/gowvp/roadeye/internal/core/user/store/userdb"
	"github.com/ixugo/goddd/pkg/web"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newAccidentCore(t *testing.T) accident.Core {
	return accident.NewCore(accidentdb.NewDB(newDB(t)).AutoMigrate(true),
		accident.WithEvidenceDir(t.TempDir()),
		accident.WithBaseURL("http://127.0.0.1:8080"),
	)
}

func do(r http.Handler, method, target string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doJSON(r http.Handler, method, target string, v any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(v)
	return do(r, method, target, bytes.NewReader(b), "Content-Type", "application/json")
}

func TestSecureFilename(t *testing.T) {
	cases := map[string]string{
		"crash.mp4":            "crash.mp4",
		"my crash.mp4":         "my_crash.mp4",
		"../../etc/passwd":     "passwd",
		`C:\videos\road 1.avi`: "road_1.avi",
		".hidden.mp4":          "hidden.mp4",
		"":                     "video",
		"a$b%c.mov":            "abc.mov",
	}
	for in, want := range cases {
		if got := secureFilename(in); got != want {
			t.Errorf("secureFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func newUserRouter(t *testing.T) (*gin.Engine, UserAPI) {
	core := user.NewCore(userdb.NewDB(newDB(t)).AutoMigrate(true), user.WithBcryptCost(bcrypt.MinCost))
	api := NewUserAPI(&conf.Bootstrap{Server: conf.Server{HTTP: conf.ServerHTTP{JwtSecret: "test-secret"}}}, core)
	r := gin.New()
	RegisterUser(r, api)
	return r, api
}

func TestRegisterAndLogin(t *testing.T) {
	r, _ := newUserRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/register", gin.H{"email": "ops@example.com", "password": "pw"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register code = %d body = %s", w.Code, w.Body)
	}
	w = doJSON(r, http.MethodPost, "/api/v1/auth/register", gin.H{"email": "OPS@example.com", "password": "pw"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register code = %d", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "ops@example.com", "password": "pw"})
	if w.Code != http.StatusOK {
		t.Fatalf("login code = %d body = %s", w.Code, w.Body)
	}
	var out loginOutput
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.AccessToken == "" {
		t.Fatal("empty access token")
	}
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "token" {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != out.AccessToken || !cookie.HttpOnly {
		t.Fatalf("token cookie = %+v", cookie)
	}

	w = doJSON(r, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "ops@example.com", "password": "bad"})
	if w.Code == http.StatusOK {
		t.Fatal("login with wrong password succeeded")
	}
	w = doJSON(r, http.MethodPost, "/api/v1/auth/login", gin.H{"password": "pw"})
	if w.Code == http.StatusOK {
		t.Fatal("login without email succeeded")
	}
}

func TestLoginEncrypted(t *testing.T) {
	r, api := newUserRouter(t)
	if _, err := api.core.Register(context.Background(), "ops@example.com", "pw"); err != nil {
		t.Fatal(err)
	}

	w := do(r, http.MethodGet, "/api/v1/auth/login/key", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("key code = %d", w.Code)
	}
	pub, err := api.secret.GetOrCreatePublicKey()
	if err != nil {
		t.Fatal(err)
	}
	block, _ := pem.Decode(api.secret.MarshalPKIXPublicKey(pub))
	if block == nil {
		t.Fatal("invalid pem")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		t.Fatal(err)
	}
	plain, _ := json.Marshal(gin.H{"email": "ops@example.com", "password": "pw"})
	cipher, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, key.(*rsa.PublicKey), plain, nil)
	if err != nil {
		t.Fatal(err)
	}

	w = doJSON(r, http.MethodPost, "/api/v1/auth/login", gin.H{"data": base64.StdEncoding.EncodeToString(cipher)})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "access_token") {
		t.Fatalf("code = %d body = %s", w.Code, w.Body)
	}
}

func TestAccidentRoutes(t *testing.T) {
	core := newAccidentCore(t)
	r := gin.New()
	RegisterAccident(r, NewAccidentAPI(core))

	w := doJSON(r, http.MethodPost, "/api/v1/accident/create", gin.H{"video_name": "a.mp4"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing fields code = %d", w.Code)
	}

	in := gin.H{
		"video_name":           "a.mp4",
		"severity":             "High",
		"severityInPercentage": 91,
		"address":              "MG Road",
		"city":                 "Bengaluru",
		"latitude":             12.9698,
		"longitude":            77.75,
		"image_url":            "",
	}
	w = doJSON(r, http.MethodPost, "/api/v1/accident/create", in)
	if w.Code != http.StatusCreated {
		t.Fatalf("create code = %d body = %s", w.Code, w.Body)
	}
	var created struct {
		Status string `json:"status"`
		ID     int64  `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Status != "success" || created.ID == 0 {
		t.Fatalf("created = %+v", created)
	}

	w = do(r, http.MethodGet, "/api/v1/accident/all", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"datas"`) || !strings.Contains(w.Body.String(), "Bengaluru") {
		t.Fatalf("all code = %d body = %s", w.Code, w.Body)
	}

	var one struct {
		Status string            `json:"status"`
		Data   accident.Accident `json:"data"`
	}
	w = do(r, http.MethodGet, "/api/v1/accident/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get code = %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &one); err != nil {
		t.Fatal(err)
	}
	if one.Data.Result != analysis.ResultAccident || one.Data.SeverityPercentage != 91 {
		t.Fatalf("data = %+v", one.Data)
	}

	if w = do(r, http.MethodGet, "/api/v1/accident/999", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing code = %d", w.Code)
	}
	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		if w = do(r, method, "/api/v1/accident/abc", nil); w.Code != http.StatusBadRequest {
			t.Fatalf("%s non-numeric id code = %d", method, w.Code)
		}
	}
	if w = do(r, http.MethodGet, "/api/v1/accident/1", nil); w.Code != http.StatusOK {
		t.Fatalf("record gone after rejected delete, code = %d", w.Code)
	}
	if w = do(r, http.MethodGet, "/api/v1/accident/summary", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"month"`) {
		t.Fatalf("summary code = %d body = %s", w.Code, w.Body)
	}
}

func TestAccidentRoutesRequireAuth(t *testing.T) {
	r := gin.New()
	auth := web.AuthMiddleware("test-secret")
	RegisterAccident(r, NewAccidentAPI(newAccidentCore(t)), auth)
	RegisterEmail(r, EmailAPI{mail: &fakeMailer{enabled: true}}, auth)

	if w := do(r, http.MethodGet, "/api/v1/accident/all", nil); w.Code == http.StatusOK {
		t.Fatal("accident list without token succeeded")
	}
	if w := doJSON(r, http.MethodPost, "/api/v1/emails/send-email", gin.H{}); w.Code == http.StatusOK {
		t.Fatal("send email without token succeeded")
	}
}

type analyzerFunc func(ctx context.Context, path string) (*analysis.Result, error)

func (f analyzerFunc) AnalyzeFile(ctx context.Context, path string) (*analysis.Result, error) {
	return f(ctx, path)
}

func newUpload(t *testing.T, field, name string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadVideo(t *testing.T) {
	dir := t.TempDir()
	var analyzed string
	ing := accident.NewIngestor(newAccidentCore(t), analyzerFunc(func(_ context.Context, path string) (*analysis.Result, error) {
		analyzed = path
		if strings.HasSuffix(path, "broken.mp4") {
			return nil, analysis.ErrSourceUnavailable
		}
		return &analysis.Result{
			Result:             analysis.ResultAccident,
			Severity:           analysis.SeverityHigh,
			SeverityPercentage: 87,
			Evidence:           &analysis.Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 4))},
			FramesAnalyzed:     150,
			CollisionFrames:    12,
		}, nil
	}))
	allow := true
	api := PublicAPI{uploadDir: dir, ingestor: ing, limiter: func(string) bool { return allow }}
	r := gin.New()
	RegisterPublic(r, api)

	body, ct := newUpload(t, "video", "../road cam.mp4", []byte("fake video"))
	w := do(r, http.MethodPost, "/api/v1/public/upload-video", body, "Content-Type", ct)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d body = %s", w.Code, w.Body)
	}
	var out uploadVideoOutput
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "success" || out.AccidentID != "1" || !strings.HasSuffix(out.Video, "_road_cam.mp4") {
		t.Fatalf("out = %+v", out)
	}
	if out.Analysis != (analysisOutput{Result: "Accident", Severity: "High", SeverityPercentage: 87}) {
		t.Fatalf("analysis = %+v", out.Analysis)
	}
	if analyzed != filepath.Join(dir, out.Video) {
		t.Fatalf("analyzed %q", analyzed)
	}
	if b, err := os.ReadFile(analyzed); err != nil || string(b) != "fake video" {
		t.Fatalf("saved file = %q, %v", b, err)
	}

	w = do(r, http.MethodGet, "/api/v1/public/video/"+out.Video, nil)
	if w.Code != http.StatusOK || w.Body.String() != "fake video" {
		t.Fatalf("serve code = %d", w.Code)
	}
	if w = do(r, http.MethodGet, "/api/v1/public/video/missing.mp4", nil); w.Code != http.StatusNotFound {
		t.Fatalf("serve missing code = %d", w.Code)
	}
	if w = do(r, http.MethodGet, "/api/v1/public/video/..passwd", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("serve invalid code = %d", w.Code)
	}

	body, ct = newUpload(t, "file", "a.mp4", []byte("x"))
	if w = do(r, http.MethodPost, "/api/v1/public/upload-video", body, "Content-Type", ct); w.Code != http.StatusBadRequest {
		t.Fatalf("missing field code = %d", w.Code)
	}

	body, ct = newUpload(t, "video", "broken.mp4", []byte("x"))
	if w = do(r, http.MethodPost, "/api/v1/public/upload-video", body, "Content-Type", ct); w.Code == http.StatusOK {
		t.Fatal("unreadable video accepted")
	}

	allow = false
	body, ct = newUpload(t, "video", "a.mp4", []byte("x"))
	if w = do(r, http.MethodPost, "/api/v1/public/upload-video", body, "Content-Type", ct); w.Code != http.StatusTooManyRequests {
		t.Fatalf("limited code = %d", w.Code)
	}
}

func TestUploadVideoSaveFailure(t *testing.T) {
	// 未建表，写入必然失败
	core := accident.NewCore(accidentdb.NewDB(newDB(t)), accident.WithEvidenceDir(t.TempDir()))
	ing := accident.NewIngestor(core, analyzerFunc(func(context.Context, string) (*analysis.Result, error) {
		return &analysis.Result{
			Result:             analysis.ResultAccident,
			Severity:           analysis.SeverityMedium,
			SeverityPercentage: 64,
			Evidence:           &analysis.Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 4))},
		}, nil
	}))
	r := gin.New()
	RegisterPublic(r, PublicAPI{uploadDir: t.TempDir(), ingestor: ing})

	body, ct := newUpload(t, "video", "a.mp4", []byte("x"))
	w := do(r, http.MethodPost, "/api/v1/public/upload-video", body, "Content-Type", ct)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d body = %s", w.Code, w.Body)
	}
	var out uploadVideoOutput
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "error" || out.AccidentID != "" {
		t.Fatalf("out = %+v", out)
	}
	if out.Analysis != (analysisOutput{Result: "Accident", Severity: "Medium", SeverityPercentage: 64}) {
		t.Fatalf("verdict dropped: %+v", out.Analysis)
	}
}

type sliceSource struct {
	frames []image.Image
	closed bool
}

func (s *sliceSource) Next(context.Context) (image.Image, error) {
	if len(s.frames) == 0 {
		return nil, io.EOF
	}
	img := s.frames[0]
	s.frames = s.frames[1:]
	return img, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func TestDetectVideo(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cam.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := &sliceSource{frames: []image.Image{
		image.NewRGBA(image.Rect(0, 0, 64, 48)),
		image.NewRGBA(image.Rect(0, 0, 64, 48)),
	}}
	calls := 0
	api := PublicAPI{
		uploadDir: dir,
		open: func(context.Context, string) (analysis.FrameSource, error) {
			return src, nil
		},
		detector: analysis.DetectorFunc(func(context.Context, image.Image) ([]analysis.Detection, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("detector busy")
			}
			return []analysis.Detection{{Label: "car", Confidence: 0.9, Box: analysis.Box{X1: 4, Y1: 4, X2: 30, Y2: 30}}}, nil
		}),
	}
	r := gin.New()
	RegisterPublic(r, api)

	w := do(r, http.MethodGet, "/api/v1/public/detect/cam.mp4", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Fatalf("content type = %q", ct)
	}
	body := w.Body.Bytes()
	if n := bytes.Count(body, []byte("--frame\r\n")); n != 2 {
		t.Fatalf("parts = %d", n)
	}
	if n := bytes.Count(body, []byte{0xff, 0xd8, 0xff}); n < 2 {
		t.Fatalf("jpeg frames = %d", n)
	}
	if !src.closed {
		t.Fatal("source not closed")
	}

	if w = do(r, http.MethodGet, "/api/v1/public/detect/none.mp4", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing code = %d", w.Code)
	}
}

func TestAnnotate(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	out := annotate(img, []analysis.Detection{
		{Label: "truck", Confidence: 0.5, Box: analysis.Box{X1: 20, Y1: 30, X2: 60, Y2: 70}},
	})
	if out.Bounds() != img.Bounds() {
		t.Fatalf("bounds = %v", out.Bounds())
	}
	// 框的左边线
	r, g, _, _ := out.At(20, 50).RGBA()
	if r == 0 && g == 0 {
		t.Fatal("box edge not drawn")
	}
	if c := color.RGBAModel.Convert(out.At(40, 50)).(color.RGBA); c.R != 0 || c.G != 0 || c.B != 0 {
		t.Fatalf("box interior = %v", c)
	}
	if got := annotate(img, nil); got.Bounds() != img.Bounds() {
		t.Fatal("annotate without detections changed bounds")
	}
}

type fakeMailer struct {
	enabled bool
	err     error
	mu      sync.Mutex
	alerts  []notify.Alert
}

func (f *fakeMailer) Enabled() bool { return f.enabled }

func (f *fakeMailer) Notify(_ context.Context, a notify.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return f.err
}

func TestSendEmail(t *testing.T) {
	m := &fakeMailer{}
	r := gin.New()
	RegisterEmail(r, EmailAPI{mail: m})
	in := gin.H{"latitude": 12.9698, "longitude": 77.75, "severity": "High", "location": "MG Road"}

	if w := doJSON(r, http.MethodPost, "/api/v1/emails/send-email", in); w.Code != http.StatusInternalServerError {
		t.Fatalf("disabled code = %d", w.Code)
	}

	m.enabled = true
	if w := doJSON(r, http.MethodPost, "/api/v1/emails/send-email", in); w.Code != http.StatusOK {
		t.Fatalf("code = %d body = %s", w.Code, w.Body)
	}
	if len(m.alerts) != 1 || m.alerts[0].Severity != "High" || m.alerts[0].Location != "MG Road" || m.alerts[0].Latitude != 12.9698 {
		t.Fatalf("alerts = %+v", m.alerts)
	}

	m.err = errors.New("smtp down")
	if w := doJSON(r, http.MethodPost, "/api/v1/emails/send-email", in); w.Code != http.StatusBadGateway {
		t.Fatalf("failed send code = %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	uc := &Usecase{Conf: &conf.Bootstrap{BuildVersion: "v0.1.0"}}
	r := gin.New()
	r.GET("/health", web.WrapH(uc.getHealth))
	w := do(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "v0.1.0") {
		t.Fatalf("code = %d body = %s", w.Code, w.Body)
	}
}
