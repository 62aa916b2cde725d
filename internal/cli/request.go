package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/config"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/filex"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/flagx"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/trust"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/upload"
)

// RequestFlags are the value-taking flags describing what to send.
var RequestFlags = []string{"-to", "-to-bucket", "-to-region", "-m", "-thumb"}

// ErrUsage is returned for a command line that names no recipient or file.
var ErrUsage = errors.New("usage: send -to <user> -to-bucket <bucket> [-to-region <region>] [-m <message>] [-thumb <image>] <file>...")

// ParseRequest builds the send request from args. Every opened file is
// returned as a closer, also on error, and must be closed by the caller once
// the send is over. The thumbnail, if given, belongs to the first file.
func ParseRequest(args []string) (upload.Request, []io.Closer, error) {
	var req upload.Request
	var thumb string

	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&req.Recipient.UserID, "to", "", "recipient user id")
	fs.StringVar(&req.Recipient.Bucket, "to-bucket", "", "recipient bucket")
	fs.StringVar(&req.Recipient.Region, "to-region", "us-west-2", "recipient bucket region")
	fs.StringVar(&req.Message, "m", "", "message text")
	fs.StringVar(&thumb, "thumb", "", "thumbnail image for the first file")

	if err := fs.Parse(flagx.FilterArgs(args, RequestFlags)); err != nil {
		return req, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	paths := flagx.Positional(args, slices.Concat(RequestFlags, config.Flags, []string{"-c", "-config"}))
	if req.Recipient.UserID == "" || req.Recipient.Bucket == "" || len(paths) == 0 {
		return req, nil, ErrUsage
	}

	var closers []io.Closer
	for _, p := range paths {
		f, err := filex.Open(p)
		if err != nil {
			return req, closers, err
		}
		closers = append(closers, f)
		req.Files = append(req.Files, upload.SourceFile{
			Name: f.Name,
			MIME: f.MIME,
			Size: f.Size,
			Data: f,
		})
	}

	if thumb != "" {
		b, err := filex.ReadThumbnail(thumb)
		if err != nil {
			return req, closers, err
		}
		req.Files[0].Thumbnail = b
	}
	return req, closers, nil
}

func recipientString(r trust.Recipient) string {
	return fmt.Sprintf("%s (%s/%s)", r.UserID, r.Region, r.Bucket)
}
