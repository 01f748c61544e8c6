package clog

import "encoding/json"
import "fmt"
import "os"
import "strings"
import "time"


//=========================================== Custom Log


/*
	create a named logger for a module

	every module in the tso service creates its own instance with the module
	name, so log lines can be traced back to the controller, a worker shard,
	the transport, etc.
*/

func NewCustomLog(name string) *CustomLog {
	return &CustomLog{
		Name: name,
	}
}

func (cLog *CustomLog) Debug(msg ...interface{}) {
	cLog.formatOutput(Debug, msg)
}

func (cLog *CustomLog) Error(msg ...interface{}) {
	cLog.formatOutput(Error, msg)
}

func (cLog *CustomLog) Info(msg ...interface{}) {
	cLog.formatOutput(Info, msg)
}

func (cLog *CustomLog) Warn(msg ...interface{}) {
	cLog.formatOutput(Warn, msg)
}

/*
	log at error level and terminate the process with a non zero exit code
*/

func (cLog *CustomLog) Fatal(msg ...interface{}) {
	cLog.formatOutput(Error, msg)
	os.Exit(1)
}

func (cLog *CustomLog) formatOutput(level LogLevel, msg []interface{}) {
	currTime := time.Now()
	formattedTime := currTime.Format("2006-01-02 15:04:05.000")

	encodedMsg := func() string {
		var encodedChunks []string
		for _, chunk := range msg {
			switch val := chunk.(type) {
				case string:
					encodedChunks = append(encodedChunks, val)
				default:
					encoded, encErr := json.Marshal(chunk)
					if encErr != nil {
						encodedChunks = append(encodedChunks, fmt.Sprintf("%v", chunk))
					} else { encodedChunks = append(encodedChunks, string(encoded)) }
			}
		}

		return strings.Join(encodedChunks, " ")
	}()

	color := func() LogColor {
		if level == Debug {
			return DebugColor
		} else if level == Error {
			return ErrorColor
		} else if level == Info {
			return InfoColor
		} else { return WarnColor }
	}()

	fmt.Printf("%s[%s](%s) %s%s%s: %s\n", color, cLog.Name, formattedTime, Bold, level, Reset, encodedMsg)
}
