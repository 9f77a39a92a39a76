package auth

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

func subject(id int64) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: strconv.FormatInt(id, 10)}
}
