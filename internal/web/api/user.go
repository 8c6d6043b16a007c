package api

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/roadeye/internal/conf"
	"github.com/gowvp/roadeye/internal/core/user"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

// tokenTTL 登录凭证有效期
const tokenTTL = 24 * time.Hour

type UserAPI struct {
	conf   *conf.Bootstrap
	core   user.Core
	secret *Secret
}

// Secret 登录密文的 RSA 密钥，每小时轮换
type Secret struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	expiredAt  time.Time
	m          sync.RWMutex
}

func (s *Secret) GetOrCreatePublicKey() (*rsa.PublicKey, error) {
	s.m.RLock()
	if s.publicKey != nil && time.Now().Before(s.expiredAt) {
		s.m.RUnlock()
		return s.publicKey, nil
	}
	s.m.RUnlock()

	s.m.Lock()
	defer s.m.Unlock()
	if s.publicKey != nil && time.Now().Before(s.expiredAt) {
		return s.publicKey, nil
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	s.privateKey = privateKey
	s.publicKey = &privateKey.PublicKey
	s.expiredAt = time.Now().Add(1 * time.Hour)
	return s.publicKey, nil
}

func (s *Secret) MarshalPKIXPublicKey(key *rsa.PublicKey) []byte {
	publicKeyBytes, _ := x509.MarshalPKIXPublicKey(key)
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	})
}

func (s *Secret) Decrypt(ciphertext string) ([]byte, error) {
	s.m.RLock()
	pri := s.privateKey
	s.m.RUnlock()
	if pri == nil {
		return nil, fmt.Errorf("请刷新页面后重试")
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, err
	}
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, pri, data, nil)
}

func NewUserAPI(conf *conf.Bootstrap, core user.Core) UserAPI {
	return UserAPI{
		conf:   conf,
		core:   core,
		secret: &Secret{},
	}
}

func RegisterUser(r gin.IRouter, api UserAPI) {
	group := r.Group("/api/v1/auth")
	group.POST("/register", api.register)
	group.POST("/login", api.login)
	group.GET("/login/key", web.WrapH(api.getPublicKey))
}

type registerInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (api UserAPI) register(c *gin.Context) {
	var in registerInput
	if err := c.ShouldBindJSON(&in); err != nil {
		web.Fail(c, reason.ErrBadRequest.Withf("%s", err.Error()))
		return
	}
	if _, err := api.core.Register(c.Request.Context(), in.Email, in.Password); err != nil {
		if errors.Is(err, user.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"msg": "User already exists"})
			return
		}
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"msg": "User registered successfully"})
}

// loginInput 明文提交 email/username + password，或提交 RSA 加密后的 data
type loginInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Data     string `json:"data"`
}

type loginOutput struct {
	AccessToken string `json:"access_token"`
}

func (in *loginInput) credentials(secret *Secret) (string, string, error) {
	if in.Data != "" {
		body, err := secret.Decrypt(in.Data)
		if err != nil {
			return "", "", reason.ErrBadRequest.SetMsg(err.Error())
		}
		var v loginInput
		if err := json.Unmarshal(body, &v); err != nil {
			return "", "", reason.ErrBadRequest.SetMsg(err.Error())
		}
		in = &v
	}
	name := in.Email
	if name == "" {
		name = in.Username
	}
	if name == "" || in.Password == "" {
		return "", "", reason.ErrBadRequest.SetMsg("email and password are required")
	}
	return name, in.Password, nil
}

func (api UserAPI) login(c *gin.Context) {
	var in loginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		web.Fail(c, reason.ErrBadRequest.Withf("%s", err.Error()))
		return
	}
	email, password, err := in.credentials(api.secret)
	if err != nil {
		web.Fail(c, err)
		return
	}
	u, err := api.core.Login(c.Request.Context(), email, password)
	if err != nil {
		web.Fail(c, err)
		return
	}

	data := web.NewClaimsData().SetUsername(u.Email)
	token, err := web.NewToken(data, api.conf.Server.HTTP.JwtSecret, web.WithExpiresAt(time.Now().Add(tokenTTL)))
	if err != nil {
		web.Fail(c, reason.ErrServer.SetMsg("生成token失败: "+err.Error()))
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("token", token, int(tokenTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, loginOutput{AccessToken: token})
}

func (api UserAPI) getPublicKey(_ *gin.Context, _ *struct{}) (gin.H, error) {
	publicKey, err := api.secret.GetOrCreatePublicKey()
	if err != nil {
		return nil, reason.ErrServer.SetMsg(err.Error())
	}
	result := api.secret.MarshalPKIXPublicKey(publicKey)
	return gin.H{"key": base64.StdEncoding.EncodeToString(result)}, nil
}
