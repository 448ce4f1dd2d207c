// +build filelog

package bclog

import "os"

// DefaultLogFile is the file created in the working directory at package
// init when built with the filelog tag.
const DefaultLogFile = "liana-business-session.log"

var logf *os.File

func init() {
	var err error
	logf, err = os.Create(DefaultLogFile)
	if err != nil {
		panic(err)
	}
}

// rawFileWriter writes straight to logf, a single unrotated file. Nothing
// in this module wires it into the loggers; the CLI entry point logs
// through the rotator whether or not the filelog tag is set.
type rawFileWriter struct{}

func (rawFileWriter) Write(b []byte) (int, error) {
	return logf.Write(b)
}
