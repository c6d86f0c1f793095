// Copyright 2024 Redpanda Data, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"fmt"
	"io/fs"
	"regexp"
)

// NewFileDataSet reads path once and creates a list dataset from its content
// split by the delimiter regular expression. An empty delimiter keeps the
// whole file as a single body. Empty tokens are dropped.
func NewFileDataSet(fsys fs.FS, path, delimiter string, opts ...Option) (*ListDataSet, error) {
	tokens, err := loadFileTokens(fsys, path, delimiter)
	if err != nil {
		return nil, err
	}
	ds, err := NewListDataSet(tokens, opts...)
	if err != nil {
		return nil, fmt.Errorf("file %v: %w", path, err)
	}
	return ds, nil
}

func loadFileTokens(fsys fs.FS, path, delimiter string) ([][]byte, error) {
	var delim *regexp.Regexp
	if delimiter != "" {
		var err error
		if delim, err = regexp.Compile(delimiter); err != nil {
			return nil, fmt.Errorf("failed to parse delimiter: %w", err)
		}
	}

	content, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset file: %w", err)
	}

	parts := []string{string(content)}
	if delim != nil {
		parts = delim.Split(parts[0], -1)
	}

	tokens := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, []byte(p))
		}
	}
	return tokens, nil
}
