// Package file stores workflows as JSON files in a directory and reads
// workflow definition files written by hand (YAML or JSON).
package file
