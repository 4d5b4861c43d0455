// Copyright 2024 The saturn.io Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jwt

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/spf13/pflag"
	"saturn.io/saturn/pkg/utils"
)

type JWT struct {
	secret []byte
}

// Payload identifies the caller of an api request.
type Payload struct {
	UserID uint   `json:"uid"`
	TeamID uint   `json:"tid"`
	Name   string `json:"name"`
}

type JWTClaims struct {
	*jwt.StandardClaims
	Payload Payload `json:"payload"`
}

type Options struct {
	Expire time.Duration `json:"expire" description:"jwt expire time"`
	Secret string        `json:"secret" description:"hmac secret used to sign tokens"`
}

func DefaultOptions() *Options {
	return &Options{
		Expire: 24 * time.Hour,
		Secret: "",
	}
}

func (o *Options) RegistFlags(prefix string, fs *pflag.FlagSet) {
	fs.DurationVar(&o.Expire, utils.JoinFlagName(prefix, "expire"), o.Expire, "jwt expire time")
	fs.StringVar(&o.Secret, utils.JoinFlagName(prefix, "secret"), o.Secret, "hmac secret used to sign tokens")
}

func (opts *Options) ToJWT() (*JWT, error) {
	if opts.Secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWT{secret: []byte(opts.Secret)}, nil
}

// GenerateToken Generate new jwt token
func (t *JWT) GenerateToken(payload Payload, expire time.Duration) (token string, expriets int64, err error) {
	tk := jwt.New(jwt.SigningMethodHS256)
	now := time.Now()
	expriets = now.Add(expire).Unix()
	tk.Claims = &JWTClaims{
		Payload: payload,
		StandardClaims: &jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: expriets,
			Subject:   strconv.FormatUint(uint64(payload.UserID), 10),
		},
	}
	token, err = tk.SignedString(t.secret)
	return token, expriets, err
}

// ParseToken Parse jwt token, return the claims
func (t *JWT) ParseToken(token string) (*JWTClaims, error) {
	claims := JWTClaims{}
	_, err := jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return &claims, nil
}
