package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"btfetch/btfetch/internal/config"
	"btfetch/btfetch/internal/logic"
	"btfetch/btfetch/internal/svc"

	"github.com/sirupsen/logrus"
	"github.com/zeromicro/go-zero/core/conf"
)

var configFile = flag.String("f", "etc/btfetch.yaml", "the config file")

const defaultConfig = `
Name: btfetch
Log:
  Mode: console
  Encoding: plain
  Level: error
`

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s [-f config] <command> [args]

Commands:
  decode <bencoded>
  info <file.torrent>
  peers <file.torrent>
  handshake <file.torrent> <ip:port>
  download_piece -o <out> <file.torrent> <index>

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func loadConfig(path string) (config.Config, error) {
	var c config.Config
	_, err := os.Stat(path)
	if err == nil {
		return c, conf.Load(path, &c)
	}
	if !os.IsNotExist(err) {
		return c, err
	}
	return c, conf.LoadFromYamlBytes([]byte(defaultConfig), &c)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c, err := loadConfig(*configFile)
	if err != nil {
		logrus.Fatalf("Failed to load config %s: %v", *configFile, err)
	}
	c.MustSetUp()
	svcCtx, err := svc.NewServiceContext(c)
	if err != nil {
		logrus.Fatalf("Failed to set up: %+v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, svcCtx, args[0], args[1:])
	if err != nil {
		stop()
		logrus.Fatalf("%s failed: %v", args[0], err)
	}
}

func run(ctx context.Context, svcCtx *svc.ServiceContext, command string, args []string) error {
	switch command {
	case "decode":
		if len(args) != 1 {
			return fmt.Errorf("usage: decode <bencoded>")
		}
		out, err := logic.NewDecodeLogic(ctx, svcCtx).Decode(args[0])
		if err != nil {
			return err
		}
		fmt.Println(out)
	case "info":
		if len(args) != 1 {
			return fmt.Errorf("usage: info <file.torrent>")
		}
		ret, err := logic.NewInfoLogic(ctx, svcCtx).Info(args[0])
		if err != nil {
			return err
		}
		fmt.Print(ret)
	case "peers":
		if len(args) != 1 {
			return fmt.Errorf("usage: peers <file.torrent>")
		}
		peers, err := logic.NewPeersLogic(ctx, svcCtx).Peers(args[0])
		if err != nil {
			return err
		}
		for _, p := range peers {
			fmt.Println(p)
		}
	case "handshake":
		if len(args) != 2 {
			return fmt.Errorf("usage: handshake <file.torrent> <ip:port>")
		}
		peerID, err := logic.NewHandshakeLogic(ctx, svcCtx).Handshake(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Peer ID: %s\n", peerID)
	case "download_piece":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		out := fs.String("o", "", "where to write the piece")
		err := fs.Parse(args)
		if err != nil {
			return err
		}
		if len(*out) == 0 || fs.NArg() != 2 {
			return fmt.Errorf("usage: download_piece -o <out> <file.torrent> <index>")
		}
		index, err := strconv.Atoi(fs.Arg(1))
		if err != nil {
			return fmt.Errorf("piece index %q: %w", fs.Arg(1), err)
		}
		err = logic.NewDownloadPieceLogic(ctx, svcCtx).DownloadPiece(fs.Arg(0), index, *out)
		if err != nil {
			return err
		}
		logrus.Infof("Piece %d downloaded to %s.", index, *out)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
	return nil
}
