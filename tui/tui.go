package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/navidys/tvxwidgets"
	"github.com/rivo/tview"
	"hz.tools/rf"

	"github.com/jrwynneiii/rtlaudio/config"
	"github.com/jrwynneiii/rtlaudio/demod"
)

// StreamInfo is the static half of the dashboard: what we are tuned to and
// how the stream is being detected.
type StreamInfo struct {
	Backend   string
	Frequency rf.Hz
	Mode      string
	Channel   int
}

// UI is the full-screen dashboard shown instead of the line meter.
type UI struct {
	app  *tview.Application
	pipe *demod.Pipeline
	info StreamInfo
	conf config.TuiConf

	LogOut   *tview.TextView
	done     chan struct{}
	stopOnce sync.Once
}

func New(pipe *demod.Pipeline, info StreamInfo, conf config.TuiConf) *UI {
	return &UI{
		app:  tview.NewApplication(),
		pipe: pipe,
		info: info,
		conf: conf,
		done: make(chan struct{}),
	}
}

type streamTableData struct {
	tview.TableContentReadOnly
	ui *UI
}

func (d *streamTableData) GetRowCount() int {
	return 8
}

func (d *streamTableData) GetColumnCount() int {
	return 2
}

func channelName(ch int) string {
	switch ch {
	case demod.ChannelLeft:
		return "left"
	case demod.ChannelRight:
		return "right"
	default:
		return "both"
	}
}

func (d *streamTableData) GetCell(row, column int) *tview.TableCell {
	labels := []string{
		"Backend:", "Frequency:", "Mode:", "Audio channel:",
		"Blocks played:", "Blocks dropped:", "Underruns:", "Peak level:",
	}
	if column == 0 {
		if row < len(labels) {
			return tview.NewTableCell(fmt.Sprintf("[lightskyblue]%s", labels[row]))
		}
		return tview.NewTableCell("ERROR")
	}

	pipe := d.ui.pipe
	switch row {
	case 0:
		return tview.NewTableCell(d.ui.info.Backend)
	case 1:
		return tview.NewTableCell(fmt.Sprintf("%v", d.ui.info.Frequency))
	case 2:
		return tview.NewTableCell(d.ui.info.Mode)
	case 3:
		return tview.NewTableCell(channelName(d.ui.info.Channel))
	case 4:
		return tview.NewTableCell(fmt.Sprintf("[green]%d", pipe.Blocks.Load()))
	case 5:
		dropped := pipe.Dropped.Load()
		if dropped == 0 {
			return tview.NewTableCell("[green]0")
		}
		return tview.NewTableCell(fmt.Sprintf("[red]%d", dropped))
	case 6:
		underruns := pipe.Underruns.Load()
		if underruns == 0 {
			return tview.NewTableCell("[green]0")
		}
		return tview.NewTableCell(fmt.Sprintf("[red]%d", underruns))
	case 7:
		return tview.NewTableCell(fmt.Sprintf("%.3f (max %.3f)", pipe.Peak(), pipe.MaxPeak()))
	}
	return tview.NewTableCell("ERROR")
}

// Run builds the layout and blocks inside tview's event loop until Stop is
// called or the user quits.
func (u *UI) Run() error {
	u.LogOut = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	streamStats := tview.NewTable().SetContent(&streamTableData{ui: u})

	levelGauge := tvxwidgets.NewUtilModeGauge()
	levelGauge.SetLabel("Audio level:   ")
	levelGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	levelGauge.SetWarnPercentage(70)
	levelGauge.SetCritPercentage(90)
	levelGauge.SetEmptyColor(tcell.ColorBlack)
	levelGauge.SetBorder(false)

	peakGauge := tvxwidgets.NewUtilModeGauge()
	peakGauge.SetLabel("Session peak:  ")
	peakGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	peakGauge.SetWarnPercentage(70)
	peakGauge.SetCritPercentage(90)
	peakGauge.SetEmptyColor(tcell.ColorBlack)
	peakGauge.SetBorder(false)

	spectrumPlot := tvxwidgets.NewPlot()
	spectrumPlot.SetLineColor([]tcell.Color{tcell.ColorLightSkyBlue})
	spectrumPlot.SetMarker(tvxwidgets.PlotMarkerBraille)
	spectrumPlot.SetBorder(true)
	spectrumPlot.SetTitle("Spectrum")

	gaugeBox := tview.NewFlex()
	gaugeBox.SetDirection(tview.FlexRow)
	gaugeBox.AddItem(levelGauge, 0, 1, false)
	gaugeBox.AddItem(peakGauge, 0, 1, false)
	gaugeBox.SetTitle("Levels")
	gaugeBox.SetBorder(true)

	u.LogOut.SetChangedFunc(func() {
		u.LogOut.ScrollToEnd()
		u.app.Draw()
	})
	u.LogOut.SetBorder(true).SetTitle("Log Output")

	streamStats.SetSelectable(false, false).SetBorder(true).SetTitle("Stream")

	page := tview.NewFlex().SetDirection(tview.FlexColumn)

	leftCol := tview.NewFlex().SetDirection(tview.FlexRow)
	leftCol.AddItem(streamStats, 0, 1, false)

	rightCol := tview.NewFlex().SetDirection(tview.FlexRow)
	rightCol.AddItem(gaugeBox, 0, 1, false)
	if u.conf.EnableSpectrum {
		rightCol.AddItem(spectrumPlot, 0, 2, false)
	}
	if u.conf.EnableLogOutput {
		rightCol.AddItem(u.LogOut, 0, 2, false)
		log.SetOutput(u.LogOut)
	}

	page.AddItem(leftCol, 0, 2, false)
	page.AddItem(rightCol, 0, 3, false)

	go func() {
		ticker := time.NewTicker(time.Duration(u.conf.RefreshMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-u.done:
				return
			case <-ticker.C:
			}

			levelGauge.SetValue(levelPercent(u.pipe.Peak()))
			peakGauge.SetValue(levelPercent(u.pipe.MaxPeak()))
			if u.conf.EnableSpectrum {
				if bins := u.pipe.Spectrum(); len(bins) > 0 {
					spectrumPlot.SetData([][]float64{bins})
				}
			}
			u.app.Draw()
		}
	}()

	return u.app.SetRoot(page, true).EnableMouse(true).Run()
}

// Stop tears the dashboard down. Safe to call from any goroutine and more
// than once.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		close(u.done)
		u.app.Stop()
	})
}

// levelPercent maps a block peak onto the gauge. Full-scale quadrature on
// both rails lands at sqrt(2), which is the 100% mark.
func levelPercent(peak float64) float64 {
	pct := peak / 1.414213 * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}
