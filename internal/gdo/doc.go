// Package gdo generates the firmware glue for the Security+ garage door
// opener integration (secplus_gdo).
//
// A device file declares one controller and any number of entities bound
// to it:
//
//	secplus_gdo:
//	  id: gdo1
//	  input_gdo_pin: GPIO16
//	  output_gdo_pin: GPIO17
//
//	text_sensor:
//	  - platform: secplus_gdo
//	    id: batt1
//	    name: "Battery"
//	    type: battery
//	    secplus_gdo_id: gdo1
//
// Each entity platform (text_sensor, binary_sensor, sensor) carries a closed
// registry mapping its type values to the controller method that accepts the
// entity's publish_state callback. For the file above the generated setup
// code ends with:
//
//	gdo1->register_battery(std::bind(&esphome::secplus_gdo::GDOTextSensor::publish_state, batt1, std::placeholders::_1));
//
// Usage:
//
//	doc, err := gdo.LoadFile("garage.yaml")
//	if err != nil {
//	    return err
//	}
//	prog, err := doc.Program("setup_secplus_gdo")
//	if err != nil {
//	    return err
//	}
//	fmt.Print(prog.Render())
package gdo
