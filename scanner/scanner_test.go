package scanner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/crafty/internal/device"
	"github.com/srg/crafty/internal/testutils"
	"github.com/srg/crafty/scanner"
	suitelib "github.com/stretchr/testify/suite"
)

var (
	otherHeater = device.Advertisement{Name: "STORZ&BICKEL", Address: "11:22:33:44:55:66", RSSI: -30}
	speaker     = device.Advertisement{Name: "Speaker", Address: "99:88:77:66:55:44", RSSI: -80}
)

type ScannerTestSuite struct {
	testutils.PeripheralSuite
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.WithPeripheral().WithNeighbours(otherHeater, speaker)
	suite.PeripheralSuite.SetupTest()
}

func (suite *ScannerTestSuite) scan(opts *scanner.ScanOptions) ([]scanner.Result, error) {
	opts.Duration = 50 * time.Millisecond
	return scanner.NewScanner(suite.Peripheral, suite.Logger).Scan(context.Background(), opts, nil)
}

func (suite *ScannerTestSuite) TestDefaultFindsHeatersOnly() {
	// GOAL: Verify the default filter keeps heaters and drops other advertisers
	//
	// TEST SCENARIO: Two heaters and a speaker advertise → default scan → both heaters, strongest first

	results, err := suite.scan(scanner.DefaultScanOptions())
	suite.Require().NoError(err)
	suite.Require().Len(results, 2)

	suite.Equal(otherHeater.Address, results[0].Address, "results MUST be ordered by RSSI")
	suite.Equal(testutils.DefaultAddress, results[1].Address)
	suite.Equal(1, results[1].Seen)
	suite.NotEmpty(results[1].Services)
}

func (suite *ScannerTestSuite) TestAllAndLists() {
	tests := []struct {
		name string
		opts scanner.ScanOptions
		want []string
	}{
		{
			name: "all",
			opts: scanner.ScanOptions{All: true},
			want: []string{otherHeater.Address, testutils.DefaultAddress, speaker.Address},
		},
		{
			name: "block list",
			opts: scanner.ScanOptions{All: true, BlockList: []string{otherHeater.Address}},
			want: []string{testutils.DefaultAddress, speaker.Address},
		},
		{
			name: "allow list",
			opts: scanner.ScanOptions{All: true, AllowList: []string{speaker.Address}},
			want: []string{speaker.Address},
		},
		{
			name: "empty filter accepts nothing",
			opts: scanner.ScanOptions{},
			want: []string{},
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			opts := tt.opts
			results, err := suite.scan(&opts)
			suite.Require().NoError(err)

			got := make([]string, 0, len(results))
			for _, r := range results {
				got = append(got, r.Address)
			}
			suite.Equal(tt.want, got)
		})
	}
}

func (suite *ScannerTestSuite) TestEventsAndProgress() {
	s := scanner.NewScanner(suite.Peripheral, suite.Logger)

	var phases []string
	opts := scanner.DefaultScanOptions()
	opts.Duration = 50 * time.Millisecond
	_, err := s.Scan(context.Background(), opts, func(p string) { phases = append(phases, p) })
	suite.Require().NoError(err)

	suite.Equal([]string{"Scanning", "Processing results"}, phases)

	var events []scanner.DeviceEvent
	for len(events) < 2 {
		select {
		case ev := <-s.Events():
			events = append(events, ev)
		case <-time.After(time.Second):
			suite.FailNow("missing discovery events")
		}
	}
	suite.Equal(scanner.EventNew, events[0].Type)
	suite.Equal(scanner.EventNew, events[1].Type)
}

func (suite *ScannerTestSuite) TestScanErrors() {
	suite.Run("caller cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := scanner.NewScanner(suite.Peripheral, suite.Logger).Scan(ctx, scanner.DefaultScanOptions(), nil)
		suite.True(errors.Is(err, context.Canceled))
	})

	suite.Run("central failure", func() {
		p := suite.UsePeripheral(testutils.NewCraftyBuilder().WithDiscoverError(device.ErrBluetoothOff))
		_, err := scanner.NewScanner(p, suite.Logger).Scan(context.Background(), scanner.DefaultScanOptions(), nil)
		suite.ErrorIs(err, device.ErrBluetoothOff)
	})
}

func TestScannerTestSuite(t *testing.T) {
	suitelib.Run(t, new(ScannerTestSuite))
}
