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

// Package dataset registers the `dataset` input and output, a deterministic
// message generator paired with a verifier for testing pipelines.
package dataset

import (
	// Bring in the internal plugin definitions.
	_ "github.com/redpanda-data/connect-dataset/internal/impl/dataset"
)
