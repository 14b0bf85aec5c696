/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package logger

import (
	"fmt"
	"path"
	"strings"

	log "github.com/cihub/seelog"
)

const configTemplate = `
<seelog type="sync" minlevel="%s">
	<outputs formatid="main">
		<console/>
		<rollingfile type="size" filename="%s" maxsize="104857600" maxrolls="10"/>
	</outputs>
	<formats>
		<format id="main" format="[%%Date(01-02) %%Time] [%%LEV] [%%File:%%Line] %%Msg%%n"/>
	</formats>
</seelog>
`

// SetLogging replaces the default seelog logger with one writing to console
// and a size-rotated file under logDir.
func SetLogging(logLevel, appName, logDir string) {
	if logLevel == "" {
		logLevel = "info"
	}
	if appName == "" {
		appName = "app"
	}

	file := path.Join(logDir, appName+".log")

	cfg := fmt.Sprintf(configTemplate, strings.ToLower(logLevel), file)
	logger, err := log.LoggerFromConfigAsString(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}

	err = log.ReplaceLogger(logger)
	if err != nil {
		fmt.Println(err)
	}
}

// Flush flushes any buffered log output.
func Flush() {
	log.Flush()
}
