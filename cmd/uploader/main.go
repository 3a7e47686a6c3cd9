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
// Command uploader sends a local file to object storage through a presigned
// URL issued by the ttscache server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/fawa-io/ttscache/pkg/fwlog"
)

func main() {
	var opts options
	pflag.StringVar(&opts.Server, "server", "http://localhost:8080", "Base URL of the ttscache server.")
	pflag.StringVar(&opts.File, "file", "", "Path of the file to upload.")
	pflag.StringVar(&opts.Folder, "folder", "uploads", "Destination folder in the bucket.")
	pflag.StringVar(&opts.ContentType, "content-type", "", "Content type; guessed from the extension when empty.")
	pflag.DurationVar(&opts.Expires, "expires", 0, "Lifetime of the presigned URL; server default when zero.")
	pflag.DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "Overall timeout.")
	pflag.Parse()

	if opts.File == "" {
		pflag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	publicURL, err := upload(ctx, &http.Client{}, opts)
	if err != nil {
		fwlog.Fatalf("Upload failed: %v", err)
	}
	fwlog.Infof("Uploaded %s", opts.File)
	if _, err := os.Stdout.WriteString(publicURL + "\n"); err != nil {
		fwlog.Fatal(err)
	}
}
