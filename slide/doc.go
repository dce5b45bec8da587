/*
Package slide holds the types shared by every layer of slidetile: slide identifiers
and metadata, the plain RGB tile image, error types, and the leveled logger.

Slide lists are normalized at the boundary.  Whether they arrive as a four-column
CSV (identifier, filename, width, height) or as the JSON array written by
slideprobe, LoadSlides returns a []Metadata containing only slides that hold at
least one whole tile along each axis.
*/
package slide
