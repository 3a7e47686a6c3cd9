// Copyright 2025 The fawa Authors
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
package tts

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	ssmlNamespace = "http://www.w3.org/2001/10/synthesis"
	defaultLang   = "en-US"
)

type ssmlSpeak struct {
	XMLName xml.Name  `xml:"speak"`
	Xmlns   string    `xml:"xmlns,attr"`
	Version string    `xml:"version,attr"`
	Lang    string    `xml:"xml:lang,attr"`
	Voice   ssmlVoice `xml:"voice"`
}

type ssmlVoice struct {
	Name    string      `xml:"name,attr"`
	Prosody ssmlProsody `xml:"prosody"`
}

type ssmlProsody struct {
	Rate  string `xml:"rate,attr,omitempty"`
	Pitch string `xml:"pitch,attr,omitempty"`
	Text  string `xml:",chardata"`
}

// voiceLang takes the locale from a voice name like "ko-KR-SunHiNeural".
func voiceLang(voice string) string {
	parts := strings.Split(voice, "-")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return defaultLang
	}
	return parts[0] + "-" + parts[1]
}

// BuildSSML renders the speech markup for p. Text is XML-escaped.
func BuildSSML(p Params) ([]byte, error) {
	doc := ssmlSpeak{
		Xmlns:   ssmlNamespace,
		Version: "1.0",
		Lang:    voiceLang(p.Voice),
		Voice: ssmlVoice{
			Name: p.Voice,
			Prosody: ssmlProsody{
				Rate:  p.Rate,
				Pitch: p.Pitch,
				Text:  p.Text,
			},
		},
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render ssml: %w", err)
	}
	return out, nil
}
