// Copyright 2023-2024 daviszhen
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

type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"maxSizeMB"`
	MaxBackups int    `toml:"maxBackups"`
	MaxAgeDays int    `toml:"maxAgeDays"`
}

type DebugOptions struct {
	ShowRaw           bool `toml:"showRaw"`
	MaxOutputRowCount int  `toml:"maxOutputRowCount"`
	PrintResult       bool `toml:"printResult"`
	PrintExplain      bool `toml:"printExplain"`
	SortResult        bool `toml:"sortResult"`
}

type Config struct {
	Log   LogConfig    `toml:"log"`
	Debug DebugOptions `toml:"debug"`
}
