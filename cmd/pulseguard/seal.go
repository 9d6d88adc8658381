package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hed1ad/pulseguard/pkg/aead"
	"github.com/hed1ad/pulseguard/pkg/config"
	"github.com/hed1ad/pulseguard/pkg/frame"
	"github.com/hed1ad/pulseguard/pkg/io/csv"
)

type sealOptions struct {
	csvPath  string
	column   string
	interval time.Duration
	text     bool
}

func newSealCmd(a *app) *cobra.Command {
	o := &sealOptions{}

	cmd := &cobra.Command{
		Use:   "seal [value...]",
		Short: "Seal readings into transport lines the way the sensor does",
		Example: `  pulseguard seal 70 72 71
  pulseguard seal --csv session.csv --column hr --interval 1s | pulseguard run --source stdin
  pulseguard seal --csv - --column 1 < session.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			codec, err := newCodec(cfg)
			if err != nil {
				return err
			}

			p := &pacer{out: a.stdout, interval: o.interval}
			ctx := cmd.Context()

			switch {
			case o.text:
				for _, arg := range args {
					if !p.emit(ctx, codec.EncodeText(arg)) {
						return nil
					}
				}
				return nil
			case o.csvPath != "":
				if len(args) > 0 {
					return errors.New("values and --csv are mutually exclusive")
				}
				return o.sealCSV(ctx, a.stdin, codec, p)
			}

			values, err := parseValues(args)
			if err != nil {
				return err
			}
			for _, v := range values {
				if !p.emit(ctx, codec.Encode(v)) {
					return nil
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.csvPath, "csv", "", "read values from a CSV recording, - for stdin")
	f.StringVar(&o.column, "column", "", "CSV column name or zero-based index (default: first column)")
	f.DurationVar(&o.interval, "interval", 0, "delay between emitted lines")
	f.BoolVar(&o.text, "text", false, "seal the arguments as raw plaintexts")
	return cmd
}

// sealCSV seals a CSV column. With an interval the rows are streamed as
// they are read, so a long recording replays without being loaded first.
func (o *sealOptions) sealCSV(ctx context.Context, stdin io.Reader, codec *frame.Codec, p *pacer) error {
	var opts []csv.Option
	if o.column != "" {
		if i, err := strconv.Atoi(o.column); err == nil {
			opts = append(opts, csv.WithColumn(i))
		} else {
			opts = append(opts, csv.WithColumnName(o.column))
		}
	}

	var (
		r   *csv.Reader
		err error
	)
	if o.csvPath == "-" {
		r, err = csv.FromReader(stdin, opts...)
	} else {
		r, err = csv.NewReader(o.csvPath, opts...)
	}
	if err != nil {
		return err
	}
	defer r.Close()

	if o.interval <= 0 {
		values, err := r.Read()
		if err != nil {
			return err
		}
		for _, v := range values {
			p.emit(ctx, codec.Encode(v))
		}
		return nil
	}

	values, err := r.Stream(ctx)
	if err != nil {
		return err
	}
	for v := range values {
		if !p.emit(ctx, codec.Encode(v)) {
			return nil
		}
	}
	return nil
}

func parseValues(args []string) ([]float64, error) {
	if len(args) == 0 {
		return nil, errors.New("no values given")
	}
	values := make([]float64, 0, len(args))
	for _, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", arg, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// pacer writes lines, waiting interval between them.
type pacer struct {
	out      io.Writer
	interval time.Duration
	n        int
}

func (p *pacer) emit(ctx context.Context, line string) bool {
	if p.n > 0 && p.interval > 0 {
		select {
		case <-time.After(p.interval):
		case <-ctx.Done():
			return false
		}
	}
	p.n++
	fmt.Fprintln(p.out, line)
	return true
}

func newCodec(cfg *config.Config) (*frame.Codec, error) {
	pc, err := cfg.Pipeline()
	if err != nil {
		return nil, err
	}
	cipher, err := aead.New(pc.Algorithm, pc.Key)
	if err != nil {
		return nil, err
	}
	auth, err := aead.NewAuthenticator(cipher, pc.Nonce, pc.AdditionalData)
	if err != nil {
		return nil, err
	}
	return frame.NewCodec(auth, pc.Marker, pc.Tag), nil
}
