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

package colls

import (
	"math"
)

// ScoreFunc calculates an association score of a node (freq. fx)
// and a collocate (freq. fy) co-occurring fxy times in a text
// of size n
type ScoreFunc func(fxy, fx, fy, n float64) float64

type scoreDef struct {
	name string
	fn   ScoreFunc
}

func xlx(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return x * math.Log(x)
}

func tScore(fxy, fx, fy, n float64) float64 {
	return (fxy - fx*fy/n) / math.Sqrt(fxy)
}

func mi(fxy, fx, fy, n float64) float64 {
	return math.Log2(fxy * n / (fx * fy))
}

func mi3(fxy, fx, fy, n float64) float64 {
	return math.Log2(fxy * fxy * fxy * n / (fx * fy))
}

func logLikelihood(fxy, fx, fy, n float64) float64 {
	return 2 * (xlx(fxy) + xlx(fx-fxy) + xlx(fy-fxy) + xlx(n-fx-fy+fxy) -
		xlx(fx) - xlx(fy) - xlx(n-fx) - xlx(n-fy) + xlx(n))
}

func minSensitivity(fxy, fx, fy, n float64) float64 {
	return min(fxy/fx, fxy/fy)
}

func miLogF(fxy, fx, fy, n float64) float64 {
	return mi(fxy, fx, fy, n) * math.Log(fxy+1)
}

func relFreq(fxy, fx, fy, n float64) float64 {
	return fxy / fy * 100
}

func absFreq(fxy, fx, fy, n float64) float64 {
	return fxy
}

func logDice(fxy, fx, fy, n float64) float64 {
	return 14 + math.Log2(2*fxy/(fx+fy))
}

// scoreFuncs maps function codes to functions
var scoreFuncs = map[string]scoreDef{
	"t": {"T-score", tScore},
	"m": {"MI", mi},
	"3": {"MI3", mi3},
	"l": {"log-likelihood", logLikelihood},
	"s": {"min. sensitivity", minSensitivity},
	"p": {"MI.log_f", miLogF},
	"r": {"relative freq. [%]", relFreq},
	"f": {"absolute freq.", absFreq},
	"d": {"logDice", logDice},
}
