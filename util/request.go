// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"concbench/apperr"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserIDHeader is set by an authenticating proxy in front of the service
const UserIDHeader = "X-User-ID"

// RequestUserID returns ID of the user who sent the request. Requests
// without a valid user header are considered anonymous.
func RequestUserID(ctx *gin.Context, anonymousUserID int) int {
	v := strings.TrimSpace(ctx.GetHeader(UserIDHeader))
	if v == "" {
		return anonymousUserID
	}
	userID, err := strconv.Atoi(v)
	if err != nil {
		return anonymousUserID
	}
	return userID
}

// DecodeJSONBody decodes a request body into `target`. An empty body
// keeps `target` untouched.
func DecodeJSONBody(ctx *gin.Context, target any) error {
	if ctx.Request.Body == nil {
		return nil
	}
	err := json.NewDecoder(ctx.Request.Body).Decode(target)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return apperr.NewUserInputError("failed to decode request body: %s", err)
	}
	return nil
}

// IntQuery returns an integer URL argument or `dflt` if the argument
// is missing
func IntQuery(ctx *gin.Context, name string, dflt int) (int, error) {
	v := ctx.Query(name)
	if v == "" {
		return dflt, nil
	}
	ans, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.NewUserInputError("invalid value of `%s`: %s", name, v)
	}
	return ans, nil
}
