package util

import (
	"time"
	"toeic_prep_backend/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// PaperCookie 试卷分配令牌的 Cookie 名；客户端也可通过该请求头回传
const (
	PaperCookie = "toeic_paper"
	PaperHeader = "X-Paper-Token"
)

// PaperAssignment 一次试卷分配：选中的套卷号、签发时间与有效期。
// 令牌由客户端持有，服务端不落库；判分时以令牌内容为准。
type PaperAssignment struct {
	Variant  *int
	Kind     model.AttemptKind
	IssuedAt time.Time
	TTL      time.Duration
}

// Expired 判断分配是否已过期
func (p PaperAssignment) Expired(now time.Time) bool {
	return now.After(p.IssuedAt.Add(p.TTL))
}

type paperClaims struct {
	Variant *int              `json:"variant"`
	Kind    model.AttemptKind `json:"kind"`
	jwt.RegisteredClaims
}

// SignPaperAssignment 把分配签成 HS256 JWT，过期时间即 TTL
func SignPaperAssignment(p PaperAssignment, secret string) (string, error) {
	claims := &paperClaims{
		Variant: p.Variant,
		Kind:    p.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(p.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(p.IssuedAt.Add(p.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParsePaperAssignment 解析并校验令牌。签名不符或已过期返回错误。
func ParsePaperAssignment(tokenString, secret string) (*PaperAssignment, error) {
	token, err := jwt.ParseWithClaims(tokenString, &paperClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*paperClaims)
	if !ok || !token.Valid {
		return nil, ErrStaleAssignment
	}

	p := &PaperAssignment{
		Variant: claims.Variant,
		Kind:    claims.Kind,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.TTL = claims.ExpiresAt.Time.Sub(p.IssuedAt)
	}
	return p, nil
}
