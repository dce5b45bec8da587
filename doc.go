/*
Slidetile is a tile access layer for gigapixel pathology slides stored as pyramidal
TIFF or BigTIFF files, either as local files or behind a remote tile service.

Documentation can be found at http://godoc.org/github.com/histion/slidetile

Overview

Slidetile has two halves.  The probe half decides whether a remote slide is worth
downloading by reading its first image directory with a few small HTTP range
requests, never fetching the whole file.  The sampling half draws random tiles with
real tissue content from a population of slides, reading them from local pyramid
files or from a gRPC tile service with bounded retries.

Packages

	slide       Slide identifiers and metadata, slide lists, RGB tiles, logging.
	rangeread   Byte range reads over http(s), gs://, s3:// and file:// URLs.
	tiff        TIFF and BigTIFF header and directory decoding, including the
	            range-read probe.
	pyramid     Tiled pyramid reader for local files and its handle cache.
	storageapi  Wire messages, client and reference server of the tile service.
	source      Local and remote tile sources behind one interface.
	sampler     Random tile coordinates, content validation, augmentation and the
	            sampling loop.
	candidate   Probe-driven candidate pre-filter.
	config      TOML configuration.

Commands that ship with slidetile

	slideprobe  -config=slidetile.toml candidates.csv
	tilesample  -config=slidetile.toml -n 1000 accepted.json
	tileserve   -addr :50051 -root /data/tiles

Each command prints its options with -help.  All commands read the same TOML file,
whose layout is documented in the config package.

Sampling pipelines are not shared between goroutines.  tilesample runs one Dataset,
Source and handle cache per worker, each with its own random seed, so a run with a
fixed seed and worker count is reproducible for local slides.
*/
package slidetile
